package livereload

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ScriptPath is where the client script is served.
const ScriptPath = "/livereload.js"

// clientScript reconnects automatically so a server restart during
// development picks the page back up.
const clientScript = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  function connect() {
    var sock = new WebSocket(proto + location.host + "` + WebSocketPath + `");
    sock.onmessage = function () { location.reload(); };
    sock.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
`

var scriptTag = []byte(`<script src="` + ScriptPath + `" defer></script>`)

// ScriptHandler serves the live reload client script
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		fmt.Fprint(w, clientScript)
	})
}

// Inject wraps next so that HTML responses get the client script tag
// inserted before the closing body tag. Non-HTML responses stream through
// untouched.
func Inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &injectingWriter{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		rec.finish()
	})
}

// injectingWriter buffers HTML responses until the handler completes, then
// writes them out with the script tag spliced in. Anything that is not
// text/html is passed straight through.
type injectingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	passthrough bool
	buf         bytes.Buffer
}

func (iw *injectingWriter) WriteHeader(status int) {
	if iw.wroteHeader {
		return
	}
	iw.wroteHeader = true
	iw.status = status

	ct := iw.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		iw.passthrough = true
		iw.ResponseWriter.WriteHeader(status)
	}
	// HTML header write is deferred until finish so Content-Length can be
	// corrected after injection.
}

func (iw *injectingWriter) Write(p []byte) (int, error) {
	if !iw.wroteHeader {
		// Mirror net/http: sniff the content type before deciding.
		if iw.Header().Get("Content-Type") == "" {
			iw.Header().Set("Content-Type", http.DetectContentType(p))
		}
		iw.WriteHeader(http.StatusOK)
	}
	if iw.passthrough {
		return iw.ResponseWriter.Write(p)
	}
	return iw.buf.Write(p)
}

func (iw *injectingWriter) finish() {
	if iw.passthrough {
		return
	}
	if !iw.wroteHeader {
		iw.ResponseWriter.WriteHeader(http.StatusOK)
		return
	}

	body := injectScript(iw.buf.Bytes())
	iw.Header().Set("Content-Length", strconv.Itoa(len(body)))
	iw.ResponseWriter.WriteHeader(iw.status)
	iw.ResponseWriter.Write(body)
}

// injectScript splices the script tag in before </body>, or appends it when
// the document has no closing body tag.
func injectScript(doc []byte) []byte {
	at := injectionPoint(doc)
	if at < 0 {
		at = len(doc)
	}

	out := make([]byte, 0, len(doc)+len(scriptTag))
	out = append(out, doc[:at]...)
	out = append(out, scriptTag...)
	out = append(out, doc[at:]...)
	return out
}

// injectionPoint tokenizes the document and returns the byte offset of the
// closing body tag, or -1 when there is none. Tokenizing instead of a
// string search keeps a literal "</body>" inside a script or attribute
// from being mistaken for the real one.
func injectionPoint(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return -1
		}
		raw := z.Raw()
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			if string(name) == "body" {
				return offset
			}
		}
		offset += len(raw)
	}
}
