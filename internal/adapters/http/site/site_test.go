package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a registered dashboard", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		serve := func(method, path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(method, path, nil))
			return w
		}

		Convey("The root serves the dashboard page", func() {
			w := serve(http.MethodGet, "/")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "/harvest")
			So(w.Body.String(), ShouldContainSubstring, "/data/matches")
		})

		Convey("Unknown assets are not found", func() {
			So(serve(http.MethodGet, "/some-asset").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Writes are not routed", func() {
			So(serve(http.MethodPost, "/").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		So(func() { Register(context.Background(), nil) }, ShouldPanic)
	})
}
