// Package assemblyline provides a client for the Assemblyline v4 HTTP API.
//
// The package owns the session lifecycle: it logs in, carries the
// anti-forgery token issued in the XSRF-TOKEN cookie back to the server in
// the X-XSRF-TOKEN header, retries failed connections and logs in again when
// the server reports that the session is no longer valid.
//
// # Usage
//
//	logger := zerolog.New(os.Stderr)
//	conn, err := assemblyline.Connect(ctx,
//		"https://assemblyline.example.com",
//		assemblyline.APIKeyCredential{Username: "admin", Key: "key-name:secret"},
//		logger,
//		assemblyline.WithMaxRetries(5),
//		assemblyline.WithTimeout(30*time.Second),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	whoami, err := assemblyline.Get(ctx, conn, "api/v4/user/whoami/", assemblyline.ConvertMap)
//
// Typed payloads are decoded with ConvertInto:
//
//	type Alert struct {
//		AlertID string `json:"alert_id"`
//	}
//	alert, err := assemblyline.Get(ctx, conn, "api/v4/alert/"+id+"/", assemblyline.ConvertInto[Alert]())
//
// # Retries
//
// Without WithMaxRetries the client retries refused connections and expired
// sessions indefinitely. Retries wait min(2, 2^(n-7)) seconds, so the first
// few are almost immediate. With a ceiling of N the client sends at most N+1
// requests before returning a ClientError with status 429.
//
// # Error Handling
//
//   - ClientError: the server rejected the request, or retries ran out
//   - TransportError: no HTTP response was received
//   - ErrInvalidConfiguration: bad header, certificate or connection setting
//   - ErrMalformedResponse: a success response without the expected payload
//   - ErrInvalidIdentifier: a sha256 that is not 64 hex characters
//
//	var apiErr *assemblyline.ClientError
//	if errors.As(err, &apiErr) && apiErr.IsRetriesExhausted() {
//		// server unreachable for too long
//	}
package assemblyline
