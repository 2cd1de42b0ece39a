package broker

import "errors"

// ErrJobQueueFull is returned by JobAdd when a function's max_queue_size
// would be exceeded by a newly created job (dedup-reused jobs never
// trigger this).
var ErrJobQueueFull = errors.New("broker: job queue full")

// ErrUnknownJob is returned when a handle doesn't name a live job.
var ErrUnknownJob = errors.New("broker: unknown job handle")

// ErrUnknownFunction is returned when a function name has no
// registration (no worker has ever declared it and it holds no jobs).
var ErrUnknownFunction = errors.New("broker: unknown function")

// ErrFunctionBusy is returned by DropFunction when workers are still
// declared capable of it.
var ErrFunctionBusy = errors.New("broker: function has active workers")
