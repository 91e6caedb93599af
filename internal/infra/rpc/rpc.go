// Package rpc provides a resilient client for the video generation API.
//
// Every call runs under the retry engine with a policy chosen by operation
// kind. Terminal failures surface as *classify.ClassifiedError, whose
// Original is a *retry.AggregateError when retries were exhausted.
//
// # Quick Start
//
//	transport := provider.NewHTTPTransport(provider.HTTPConfig{BaseURL: url, Token: token})
//	client := rpc.NewClient(transport, rpc.WithRecorder(mon))
//
//	// Bind a monitoring context per request; client itself stays shareable.
//	job, err := client.WithContext(rpc.MonitorContext{TargetID: "acme/video"}).
//	    CreateJob(ctx, provider.JobRequest{Model: "acme/video", Input: input})
//	if err != nil {
//	    var ce *classify.ClassifiedError
//	    if errors.As(err, &ce) {
//	        fmt.Println(ce.UserMessage, ce.SuggestedAction)
//	    }
//	}
//
// # Package Structure
//
//   - provider/ - Transport implementations (REST, gRPC)
//   - classify/ - Error classification and kind-specific delay presets
//   - retry/    - Retry engine and policies
package rpc
