package auth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRateLimiterBucket(t *testing.T) {
	Convey("Given a bucket of 3 tokens per second", t, func() {
		limiter := NewRateLimiter(3, time.Second)

		Convey("Then the full burst passes and the next call is limited", func() {
			So(limiter.Allow(), ShouldBeTrue)
			So(limiter.Allow(), ShouldBeTrue)
			So(limiter.Allow(), ShouldBeTrue)
			So(limiter.Allow(), ShouldBeFalse)
		})
	})
}

func TestRateLimiterRefill(t *testing.T) {
	Convey("Given a drained bucket refilling at 10 per second", t, func() {
		limiter := NewRateLimiter(10, time.Second)
		for limiter.Allow() {
		}

		Convey("Then tokens come back as time passes", func() {
			time.Sleep(150 * time.Millisecond)
			So(limiter.Allow(), ShouldBeTrue)
		})
	})
}

func TestRateLimiterWaitTime(t *testing.T) {
	Convey("Given a limiter with tokens available", t, func() {
		limiter := NewRateLimiter(2, time.Second)

		Convey("Then the wait is zero", func() {
			So(limiter.WaitTime(), ShouldEqual, time.Duration(0))
		})

		Convey("When the bucket is drained", func() {
			for limiter.Allow() {
			}

			Convey("Then the wait is positive and bounded by the refill rate", func() {
				wait := limiter.WaitTime()
				So(wait, ShouldBeGreaterThan, time.Duration(0))
				So(wait, ShouldBeLessThanOrEqualTo, time.Second)
			})
		})
	})
}

func TestRateLimiterTryUntil(t *testing.T) {
	Convey("Given a drained limiter refilling at 20 per second", t, func() {
		limiter := NewRateLimiter(20, time.Second)
		for limiter.Allow() {
		}

		Convey("Then a generous deadline acquires a token", func() {
			So(limiter.TryUntil(time.Now().Add(time.Second)), ShouldBeTrue)
		})
	})

	Convey("Given a drained limiter refilling at 1 per minute", t, func() {
		limiter := NewRateLimiter(1, time.Minute)
		limiter.Allow()

		Convey("Then an immediate deadline gives up", func() {
			So(limiter.TryUntil(time.Now()), ShouldBeFalse)
		})
	})
}

func TestRateLimiterReset(t *testing.T) {
	Convey("Given a drained limiter", t, func() {
		limiter := NewRateLimiter(2, time.Minute)
		limiter.Allow()
		limiter.Allow()
		So(limiter.Allow(), ShouldBeFalse)

		Convey("When it is reset", func() {
			limiter.Reset()

			Convey("Then the full burst is available again", func() {
				So(limiter.Allow(), ShouldBeTrue)
				So(limiter.Allow(), ShouldBeTrue)
			})
		})
	})
}
