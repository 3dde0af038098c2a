package udp

import (
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"

	"prsd/services/prs/internal/lease"
)

// maxDatagram bounds a single read. Anything longer than a protocol message
// fails decoding and is answered with UNDEFINED_ERROR.
const maxDatagram = 512

const (
	receiveRetryMin = 5 * time.Millisecond
	receiveRetryMax = time.Second
)

type Server struct {
	addr    string
	table   *lease.Table
	logger  *log.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

type Option func(*Server)
