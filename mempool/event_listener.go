package mempool

type EventListener interface {
	OnAdmitted(future bool)
	OnRejected(kind ErrorKind)
	OnSizeChanged(ready, future int)
}

type SelectiveListener struct {
	OnAdmittedCb    func(future bool)
	OnRejectedCb    func(kind ErrorKind)
	OnSizeChangedCb func(ready, future int)
}

func (l *SelectiveListener) OnAdmitted(future bool) {
	if l.OnAdmittedCb != nil {
		l.OnAdmittedCb(future)
	}
}

func (l *SelectiveListener) OnRejected(kind ErrorKind) {
	if l.OnRejectedCb != nil {
		l.OnRejectedCb(kind)
	}
}

func (l *SelectiveListener) OnSizeChanged(ready, future int) {
	if l.OnSizeChangedCb != nil {
		l.OnSizeChangedCb(ready, future)
	}
}
