// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"time"

	"github.com/sony/gobreaker"
)

type breakerAuthenticator struct {
	next Authenticator
	cb   *gobreaker.CircuitBreaker
}

type authResult struct {
	super bool
	err   error
}

// WithBreaker wraps an Authenticator with a circuit breaker so a failing
// auth backend sheds load instead of stalling every CONNECT. Credential
// rejections are backend answers, not backend failures, and do not trip
// the breaker.
func WithBreaker(next Authenticator, name string) Authenticator {
	st := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &breakerAuthenticator{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(st),
	}
}

func (b *breakerAuthenticator) Authenticate(creds Credentials, password []byte) (bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		super, err := b.next.Authenticate(creds, password)
		if err == ErrBadCredentials || err == ErrUnknownClient {
			return authResult{err: err}, nil
		}
		if err != nil {
			return nil, err
		}
		return authResult{super: super}, nil
	})
	if err != nil {
		return false, err
	}
	r := res.(authResult)
	return r.super, r.err
}
