// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import "github.com/moziie/emqx/packets/codes"

// checkStep is one element of an ordered check chain. Steps run in order
// and the first failure reason (code 0x80 or above) stops the chain.
type checkStep func() codes.Reason

// runChecks folds the chain and returns the first failure, or Success.
func runChecks(steps ...checkStep) codes.Reason {
	for _, step := range steps {
		if rc := step(); rc.Error() {
			return rc
		}
	}
	return codes.Success
}
