package app

import "time"

// flushTimeout bounds how long Close waits for pending error reports.
const flushTimeout = 2 * time.Second
