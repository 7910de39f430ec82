package provideradapter

import (
	"errors"
	"fmt"
	"strconv"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	openaisdk "github.com/openai/openai-go"
)

// CallError wraps a provider SDK error returned from a Chat call, tagging
// it with the provider key so dispatcher error events read clearly.
type CallError struct {
	Provider string
	Cause    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provideradapter: %s call failed: %v", e.Provider, e.Cause)
}

func (e *CallError) Unwrap() error { return e.Cause }

// RateLimited implements middleware.RateLimitedError, recognizing a 429
// response across any of the three wrapped SDKs plus Bedrock's
// ThrottlingException.
func (e *CallError) RateLimited() bool {
	var anthropicErr *anthropicsdk.Error
	if errors.As(e.Cause, &anthropicErr) && anthropicErr.StatusCode == 429 {
		return true
	}
	var openaiErr *openaisdk.Error
	if errors.As(e.Cause, &openaiErr) && openaiErr.StatusCode == 429 {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(e.Cause, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(e.Cause, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

// StatusCode implements retry.StatusCoder, extracting the upstream HTTP
// status from whichever of the three wrapped SDKs produced the error. It
// returns 0 when no status is recoverable, which retry.Do's default
// classifier treats as non-retryable.
func (e *CallError) StatusCode() int {
	var anthropicErr *anthropicsdk.Error
	if errors.As(e.Cause, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var openaiErr *openaisdk.Error
	if errors.As(e.Cause, &openaiErr) {
		return openaiErr.StatusCode
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(e.Cause, &respErr) {
		return respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(e.Cause, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return 429
		}
	}
	return 0
}

// RetryAfterSeconds implements retry.RetryAfterer, reading a Retry-After
// response header when the underlying transport exposed one. Only
// Bedrock's smithy transport carries the raw HTTP response through to the
// error value; the Anthropic and OpenAI SDK error types don't, so those
// paths fall back to retry.Do's own backoff schedule.
func (e *CallError) RetryAfterSeconds() (float64, bool) {
	var respErr *smithyhttp.ResponseError
	if errors.As(e.Cause, &respErr) && respErr.Response != nil && respErr.Response.Response != nil {
		if v := respErr.Response.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				return secs, true
			}
		}
	}
	return 0, false
}
