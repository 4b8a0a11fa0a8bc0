// line-oriented HTTP/1.1 request state machine: request-line -> headers ->
// body -> done
package httpproto

// State is one of the four parse states; a Request's state only ever
// transitions forward.
type State int

const (
	StateRequestLine State = iota
	StateHeaders
	StateBody
	StateDone
)

// virtualHTML is the small set of extension-less routes that get ".html"
// appended, carried verbatim from the original implementation's
// kDefaultHtml table.
var virtualHTML = map[string]bool{
	"/index":    true,
	"/register": true,
	"/login":    true,
	"/welcome":  true,
	"/video":    true,
	"/picture":  true,
}

// postRewriteIsLogin maps the two auth routes to whether they represent a
// login (true) or a registration (false) attempt, the original's
// kDefaultHtmlTag table.
var postRewriteIsLogin = map[string]bool{
	"/register.html": false,
	"/login.html":    true,
}

// Request is the parsed value the state machine produces.
type Request struct {
	State State

	Method   string
	Path     string
	Version  string
	Headers  map[string]string // key case-sensitive, as received
	Body     []byte
	PostForm map[string]string
}

// Reset re-initialises the Request for the next round on the same
// connection.
func (r *Request) Reset() {
	r.State = StateRequestLine
	r.Method = ""
	r.Path = ""
	r.Version = ""
	r.Headers = nil
	r.Body = nil
	r.PostForm = nil
}

// IsKeepAlive reports whether the connection should be reused: the
// Connection header must say keep-alive AND the version must be exactly
// HTTP/1.1.
func (r *Request) IsKeepAlive() bool {
	v, ok := r.Headers["Connection"]
	if !ok {
		return false
	}
	return v == "keep-alive" && r.Version == "HTTP/1.1"
}

// applyPathRemap rewrites "/" to "/index.html" and appends ".html" to the
// small set of virtual route names. Called once, right after the
// request-line is parsed.
func (r *Request) applyPathRemap() {
	if r.Path == "/" {
		r.Path = "/index.html"
		return
	}
	if virtualHTML[r.Path] {
		r.Path += ".html"
	}
}

// Verifier is the opaque authentication collaborator: verify(user,
// password, isLogin) -> bool.
type Verifier func(user, password string, isLogin bool) bool

// ApplyPostAuth runs the POST auth-route rewrite described in spec §4.7:
// only for method=POST with a urlencoded body, and only on the two auth
// paths, rewriting Path to /welcome.html or /error.html based on verify's
// answer. It is a separate pass from parsing proper because it needs an
// external collaborator the parser itself doesn't have.
func (r *Request) ApplyPostAuth(verify Verifier) {
	if r.Method != "POST" || r.Headers["Content-Type"] != "application/x-www-form-urlencoded" {
		return
	}
	r.PostForm = parseURLEncodedForm(r.Body)

	isLogin, isAuthRoute := postRewriteIsLogin[r.Path]
	if !isAuthRoute {
		return
	}

	user, pass := r.PostForm["username"], r.PostForm["password"]
	if user == "" || pass == "" || !verify(user, pass, isLogin) {
		r.Path = "/error.html"
		return
	}
	r.Path = "/welcome.html"
}

// parseURLEncodedForm splits on '&' then on the first '=' in each pair.
func parseURLEncodedForm(body []byte) map[string]string {
	form := make(map[string]string)
	if len(body) == 0 {
		return form
	}

	for _, pair := range splitByte(body, '&') {
		key, val, _ := cutByte(pair, '=')
		form[string(key)] = string(val)
	}
	return form
}

func splitByte(b []byte, sep byte) [][]byte {
	var parts [][]byte
	start := 0
	for i := 0; i < len(b); i++ {
		if b[i] == sep {
			parts = append(parts, b[start:i])
			start = i + 1
		}
	}
	parts = append(parts, b[start:])
	return parts
}

func cutByte(b []byte, sep byte) (before, after []byte, found bool) {
	for i := 0; i < len(b); i++ {
		if b[i] == sep {
			return b[:i], b[i+1:], true
		}
	}
	return b, nil, false
}
