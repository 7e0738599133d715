package core

import "time"

// Version of collabtext.
var Version = "0.1.0"

// StartTimestamp is the time the process was started.
var StartTimestamp time.Time
