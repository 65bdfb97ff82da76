// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package synctask

import "errors"

// Status codes, spec.md §6/§7. nil means Ok.
var (
	ErrHostError              = errors.New("synctask: host error")
	ErrWaiting                = errors.New("synctask: task is waiting")
	ErrTaskCancelled          = errors.New("synctask: task cancelled")
	ErrMaxSpawnedTasksReached = errors.New("synctask: max spawned tasks reached")
	ErrMaxListenersReached    = errors.New("synctask: max listeners reached")
	ErrSyncFault              = errors.New("synctask: sync fault")
	ErrSpawnedTaskPresent     = errors.New("synctask: spawned task present")
	ErrSpawnedTaskAbsent      = errors.New("synctask: spawned task absent")
	ErrListeningTaskPresent   = errors.New("synctask: listening task present")
	ErrListeningTaskAbsent    = errors.New("synctask: listening task absent")
)
