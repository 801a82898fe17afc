package dispatch

import (
	"errors"

	"chatgate/quota"
)

var (
	ErrEmptyContent = errors.New("message content must not be empty")
	ErrNotMember    = errors.New("not a member of this chatroom")
	// ErrQuotaExceeded はquotaパッケージのエラーと同一
	ErrQuotaExceeded = quota.ErrQuotaExceeded
	ErrProvider      = errors.New("content generation failed")

	ErrQueueFull    = errors.New("persistence queue is full")
	ErrWriterClosed = errors.New("persistence writer is closed")
)

// ProviderError は生成失敗の原因を保持します。errors.Is(err, ErrProvider) が成立する
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return ErrProvider.Error() + ": " + e.Err.Error()
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error { return e.Err }
