package domain

import "time"

// Clock supplies the current time to every expiry, cooldown and window comparison
type Clock interface {
	Now() time.Time
}
