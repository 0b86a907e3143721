package request

import (
	"mime"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
)

// supportedMedia maps negotiable content types in no particular priority;
// the client's Accept ordering decides.
var supportedMedia = map[string]api.MediaType{
	"*/*":                            api.MediaJSON,
	"application/*":                  api.MediaJSON,
	"application/json":               api.MediaJSON,
	string(api.MediaSingularJSON):    api.MediaSingularJSON,
	string(api.MediaPlanJSON):        api.MediaPlanJSON,
	"text/csv":                       api.MediaCSV,
	"application/octet-stream":       api.MediaOctetStream,
	"text/plain":                     api.MediaTextPlain,
	"text/xml":                       api.MediaTextXML,
}

// negotiateAccept picks the response media type: the first Accept item the
// gateway can serve, in the order the client listed them. An empty header
// means JSON.
func negotiateAccept(header string) (api.MediaType, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return api.MediaJSON, nil
	}

	for _, item := range strings.Split(header, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(item))
		if err != nil {
			continue
		}
		if media, ok := supportedMedia[mediaType]; ok {
			return media, nil
		}
	}
	return "", api.NewInvalidRequest("none of the requested media types can be produced: %q", header)
}
