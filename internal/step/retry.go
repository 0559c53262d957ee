package step

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/flowtest/engine/internal/flowerr"
	"github.com/flowtest/engine/internal/suite"
)

// WithRetries runs attempt repeatedly per policy, exactly mirroring the
// teacher's executeStepWithRetries loop: try, classify the failure, decide
// whether to retry (non-retryable codes short-circuit, otherwise transient
// errors and assertion failures retry; see shouldRetry), sleep with backoff
// between attempts, and return
// the last outcome once attempts are exhausted or success happens.
func WithRetries(ctx context.Context, policy *suite.RetryPolicy, attempt func(ctx context.Context, attemptNum int) Outcome) Outcome {
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 1 {
		maxAttempts = policy.MaxAttempts
	}

	var last Outcome
	for i := 0; i < maxAttempts; i++ {
		if ctx.Err() != nil {
			return Outcome{Err: flowerr.New(flowerr.CodeContextCancelled, "", ctx.Err().Error())}
		}

		if i > 0 && policy != nil && policy.DelayMS > 0 {
			delay := computeDelay(policy, i)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Outcome{Err: flowerr.New(flowerr.CodeContextCancelled, "", "context cancelled during retry wait")}
			}
		}

		last = attempt(ctx, i)
		if last.Err == nil {
			return last
		}
		if i+1 < maxAttempts && shouldRetry(policy, last.Err) {
			continue
		}
		break
	}
	return last
}

// shouldRetry decides whether a failed attempt earns another try. Transport
// failures only retry when classified Transient (§4.3's taxonomy). Assertion
// failures are always retryable regardless of that classification — §4.7
// "Assertions/captures are part of the attempt (so an assertion failure
// triggers retry)" — since CodeAssertionFailed is built Permanent (it isn't
// a transport-retry-eligibility signal, just the default severity for a
// failed check). Either way, an explicit non_retryable code wins.
func shouldRetry(policy *suite.RetryPolicy, fe *flowerr.Error) bool {
	if policy == nil {
		return false
	}
	for _, code := range policy.NonRetryable {
		if code == string(fe.Code) {
			return false
		}
	}
	if fe.Code == flowerr.CodeAssertionFailed {
		return true
	}
	return fe.Type == flowerr.Transient
}

func computeDelay(policy *suite.RetryPolicy, attempt int) time.Duration {
	base := time.Duration(policy.DelayMS) * time.Millisecond
	var delay time.Duration
	switch policy.Backoff {
	case "linear":
		delay = time.Duration(attempt) * base
	case "exponential":
		delay = time.Duration(math.Pow(2, float64(attempt-1))) * base
	default:
		delay = base
	}
	if policy.MaxDelayMS > 0 {
		max := time.Duration(policy.MaxDelayMS) * time.Millisecond
		if delay > max {
			delay = max
		}
	}
	if policy.Jitter && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
	}
	return delay
}
