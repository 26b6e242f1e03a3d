package main

import (
	"context"
	"time"

	"github.com/ereojs/ereo/pkg/codec"
	"github.com/ereojs/ereo/pkg/common"
	"github.com/ereojs/ereo/pkg/router"
	"github.com/ereojs/ereo/pkg/serverfn"
)

type echoInput struct {
	Message string `json:"message"`
}

type tickInput struct {
	// Count bounds how many ticks are emitted. Zero means run until
	// the client unsubscribes.
	Count    int `json:"count"`
	Interval int `json:"intervalMs"`
}

type greetInput struct {
	Name string `json:"name"`
}

func demoRoutes() router.Routes {
	return router.Routes{
		"system": router.Routes{
			"health": router.NewProcedure().Query(func(_ *common.Context, _ any) (any, error) {
				return map[string]string{"status": "ok"}, nil
			}),
			"time": router.NewProcedure().Query(func(_ *common.Context, _ any) (any, error) {
				return map[string]string{"now": time.Now().UTC().Format(time.RFC3339)}, nil
			}),
		},
		"echo": router.NewProcedure().
			Input(codec.Schema[echoInput]().Check(func(in echoInput) error {
				if in.Message == "" {
					return common.ValidationIssues(common.Issue{
						Path:    []string{"message"},
						Message: "message is required",
						Code:    "required",
					})
				}
				return nil
			})).
			Mutation(func(_ *common.Context, input any) (any, error) {
				in := input.(echoInput)
				return map[string]string{"message": in.Message}, nil
			}),
		"ticks": router.NewProcedure().
			Input(codec.Schema[tickInput]()).
			Subscription(func(ctx context.Context, _ *common.Context, input any, sink *router.Sink) error {
				in := input.(tickInput)
				interval := time.Duration(in.Interval) * time.Millisecond
				if interval <= 0 {
					interval = time.Second
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for n := 1; in.Count == 0 || n <= in.Count; n++ {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-ticker.C:
						if !sink.Send(map[string]int{"tick": n}) {
							return ctx.Err()
						}
					}
				}
				return nil
			}),
	}
}

func registerGreet(registry *serverfn.Registry) {
	registry.MustRegister(serverfn.FnSpec{
		ID: "greet",
		Schema: codec.Schema[greetInput]().Check(func(in greetInput) error {
			if in.Name == "" {
				return common.ValidationIssues(common.Issue{
					Path:    []string{"name"},
					Message: "name is required",
					Code:    "required",
				})
			}
			return nil
		}),
		Handler: func(_ *common.Context, input any) (any, error) {
			in := input.(greetInput)
			return map[string]string{"greeting": "Hello, " + in.Name}, nil
		},
	})
}
