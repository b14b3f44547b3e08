package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	"flipmarket/internal/flip"
)

func (app *application) routes() (http.Handler, error) {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	jsonMiddleware := standardMiddleware.Append(makeResponseJSON)

	flipMux := http.NewServeMux()
	if err := flip.RegisterFlipRoutes(flipMux, app.flipDeps); err != nil {
		return nil, err
	}

	mux := pat.New()

	mux.Get("/health", jsonMiddleware.ThenFunc(app.health))

	// Flip module: catalog, sessions, purchases and the session socket.
	for _, prefix := range []string{"/api/v1/", "/ws/"} {
		mux.Get(prefix, flipMux)
		mux.Post(prefix, flipMux)
		mux.Del(prefix, flipMux)
	}

	return standardMiddleware.Then(mux), nil
}

func (app *application) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
