package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/agentmesh/a2a-core/pkg/service"
)

var testKey = []byte("unit-test-signing-key")

func TestGenerateToken(t *testing.T) {
	Convey("Given an auth service", t, func() {
		svc := NewService(testKey)
		tok, err := svc.GenerateToken("Bearer", "user1", nil)

		Convey("Then a token is returned", func() {
			So(err, ShouldBeNil)
			So(tok.Token, ShouldNotBeEmpty)
			So(tok.RefreshToken, ShouldNotBeEmpty)
			So(tok.Subject, ShouldEqual, "user1")
		})
	})
}

func TestAuthenticate(t *testing.T) {
	Convey("Given a signed request", t, func() {
		svc := NewService(testKey)
		tok, _ := svc.GenerateToken("Bearer", "user1", nil)
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok.Token)

		principal, err := svc.Authenticate(req)

		Convey("Then authentication yields the subject", func() {
			So(err, ShouldBeNil)
			So(principal, ShouldEqual, "user1")
		})
	})

	Convey("Given a request without a token", t, func() {
		svc := NewService(testKey)
		req := httptest.NewRequest("GET", "/", nil)

		principal, err := svc.Authenticate(req)

		Convey("Then the call passes through anonymous", func() {
			So(err, ShouldBeNil)
			So(principal, ShouldBeEmpty)
		})
	})

	Convey("Given a token signed with another key", t, func() {
		other := NewService([]byte("some-other-key"))
		tok, _ := other.GenerateToken("Bearer", "user1", nil)

		svc := NewService(testKey)
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok.Token)

		_, err := svc.Authenticate(req)

		Convey("Then authentication fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRefreshToken(t *testing.T) {
	Convey("Given a valid refresh token", t, func() {
		svc := NewService(testKey)
		tok, _ := svc.GenerateToken("Bearer", "user1", nil)
		time.Sleep(10 * time.Millisecond)
		newTok, err := svc.RefreshToken(tok.RefreshToken)

		Convey("Then a new token is issued for the same subject", func() {
			So(err, ShouldBeNil)
			So(newTok.Token, ShouldNotBeEmpty)
			So(newTok.Subject, ShouldEqual, "user1")
		})
	})

	Convey("Given an unknown refresh token", t, func() {
		svc := NewService(testKey)
		_, err := svc.RefreshToken("not-a-refresh-token")

		Convey("Then the exchange is rejected", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRevokeToken(t *testing.T) {
	Convey("Given an issued token", t, func() {
		svc := NewService(testKey)
		tok, _ := svc.GenerateToken("Bearer", "user1", nil)

		So(svc.RevokeToken(tok.Token), ShouldBeNil)

		Convey("Then its refresh token stops working", func() {
			_, err := svc.RefreshToken(tok.RefreshToken)
			So(err, ShouldNotBeNil)
		})

		Convey("And revoking twice errors", func() {
			So(svc.RevokeToken(tok.Token), ShouldNotBeNil)
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given the auth middleware", t, func() {
		svc := NewService(testKey)

		var seen string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = service.PrincipalFrom(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		Convey("When the request carries a valid token", func() {
			tok, _ := svc.GenerateToken("Bearer", "user1", nil)
			req := httptest.NewRequest("GET", "/v1/card", nil)
			req.Header.Set("Authorization", "Bearer "+tok.Token)
			rec := httptest.NewRecorder()

			svc.Middleware(next).ServeHTTP(rec, req)

			Convey("Then the principal reaches the handler", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(seen, ShouldEqual, "user1")
			})
		})

		Convey("When the token is garbage", func() {
			req := httptest.NewRequest("GET", "/v1/card", nil)
			req.Header.Set("Authorization", "Bearer garbage")
			rec := httptest.NewRecorder()

			svc.Middleware(next).ServeHTTP(rec, req)

			Convey("Then the request is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("When there is no token", func() {
			seen = "sentinel"
			req := httptest.NewRequest("GET", "/v1/card", nil)
			rec := httptest.NewRecorder()

			svc.Middleware(next).ServeHTTP(rec, req)

			Convey("Then the request passes through anonymous", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(seen, ShouldBeEmpty)
			})
		})
	})
}
