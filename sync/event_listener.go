package sync

import "time"

type EventListener interface {
	// OnSyncStepDone is called after a stage durably processed the window ending at blockNum.
	OnSyncStepDone(stage string, blockNum uint64, took time.Duration)
	OnStageError(stage string)
	OnTip(blockNum uint64)
}

type SelectiveListener struct {
	OnSyncStepDoneCb func(stage string, blockNum uint64, took time.Duration)
	OnStageErrorCb   func(stage string)
	OnTipCb          func(blockNum uint64)
}

func (l *SelectiveListener) OnSyncStepDone(stage string, blockNum uint64, took time.Duration) {
	if l.OnSyncStepDoneCb != nil {
		l.OnSyncStepDoneCb(stage, blockNum, took)
	}
}

func (l *SelectiveListener) OnStageError(stage string) {
	if l.OnStageErrorCb != nil {
		l.OnStageErrorCb(stage)
	}
}

func (l *SelectiveListener) OnTip(blockNum uint64) {
	if l.OnTipCb != nil {
		l.OnTipCb(blockNum)
	}
}
