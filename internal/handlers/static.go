package handlers

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"receipts/internal/apperr"
)

// staticFiles serves dir for unmatched GET and HEAD requests. Dot files and
// anything at or below a hidden path, including siblings that extend its
// name (temp and corrupt copies), answer 404.
func staticFiles(dir string, hidden []string) gin.HandlerFunc {
	root, err := filepath.Abs(dir)
	if err != nil {
		logger.Errorf("Static files disabled: %v", err)
		return func(c *gin.Context) { writeError(c, notFoundPath(c)) }
	}

	var blocked []string
	for _, p := range hidden {
		abs, err := filepath.Abs(p)
		if err != nil {
			logger.Warningf("Ignoring hidden path %s: %v", p, err)
			continue
		}
		blocked = append(blocked, abs)
	}

	files := http.FileServer(http.Dir(root))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			writeError(c, notFoundPath(c))
			return
		}

		clean := path.Clean("/" + c.Request.URL.Path)
		if hasDotSegment(clean) {
			writeError(c, notFoundPath(c))
			return
		}
		target := filepath.Join(root, filepath.FromSlash(clean))
		for _, b := range blocked {
			if target == b || strings.HasPrefix(target, b+string(filepath.Separator)) || strings.HasPrefix(target, b+".") {
				writeError(c, notFoundPath(c))
				return
			}
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func notFoundPath(c *gin.Context) error {
	return apperr.New(apperr.KindNotFound, "no such file "+c.Request.URL.Path)
}
