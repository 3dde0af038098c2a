package lease

type multiObserver []Observer

func (m multiObserver) LeaseEvent(e Event) {
	for _, o := range m {
		o.LeaseEvent(e)
	}
}

// Observers combines several observers, skipping nil entries.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
