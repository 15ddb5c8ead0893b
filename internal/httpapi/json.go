package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/version"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// HdrValApplicationJSON is the value of the Content-Type header for JSON.
const HdrValApplicationJSON = "application/json"

// nsecPerMsec is the number of nanoseconds in a millisecond.
const nsecPerMsec = float64(time.Millisecond / time.Nanosecond)

// JSONTime is a time.Time that is encoded into JSON as the number of
// milliseconds since the Unix epoch.
type JSONTime time.Time

// type check
var _ json.Marshaler = JSONTime{}

// MarshalJSON implements the json.Marshaler interface for JSONTime.  err is
// always nil.
func (t JSONTime) MarshalJSON() (b []byte, err error) {
	msec := float64(time.Time(t).UnixNano()) / nsecPerMsec
	b = strconv.AppendFloat(nil, msec, 'f', -1, 64)

	return b, nil
}

// ErrorResp is the error response of the HTTP API.
type ErrorResp struct {
	Msg string `json:"msg"`
}

// jsonMw sets the content type and the server of the response.
func jsonMw(h http.Handler) (wrapped http.HandlerFunc) {
	f := func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set(httphdr.ContentType, HdrValApplicationJSON)
		hdr.Set(httphdr.Server, "AdGuardDHCP/"+version.Version())

		h.ServeHTTP(w, r)
	}

	return http.HandlerFunc(f)
}

// writeJSONResponse writes the code and encodes v into w, and logs any errors
// it encounters.  r is used to get additional information from the request.
func (svc *Service) writeJSONResponse(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		svc.logRespErr(r, err)
	}
}

// writeJSONError is a helper for logging and writing HTTP errors.
func (svc *Service) writeJSONError(w http.ResponseWriter, r *http.Request, code int, err error) {
	svc.logger.DebugContext(r.Context(), "bad request", "method", r.Method, "path", r.URL.Path, slogutil.KeyError, err)

	svc.writeJSONResponse(w, r, code, &ErrorResp{
		Msg: err.Error(),
	})
}
