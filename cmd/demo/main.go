// Command demo runs a small ping-pong exchange between two single-element
// groups: two actors trade a message back and forth, incrementing a
// counter, for two seconds or until interrupted, whichever comes first.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-bastion/children"
	"github.com/go-bastion/children/internal/obslog"
	"github.com/go-bastion/children/runtimeconfig"
)

// rootSupervisor is the smallest possible SupervisorRef: it logs whatever
// a top-level group reports. A real supervisor would use this notice to
// decide whether to call Reset; that policy is out of scope here.
type rootSupervisor struct {
	log obslog.Logger
}

func (s rootSupervisor) Deliver(msg children.Message) error {
	s.log.Infow("supervisor observed group notice", "message", fmt.Sprintf("%v", msg))
	return nil
}

func main() {
	cfg := runtimeconfig.Load()

	log := obslog.NewDevelopment().Named("pingpong")
	log.Infow("starting demo", "logLevel", cfg.LogLevel, "defaultRedundancy", cfg.DefaultRedundancy)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		cancel()
	}()

	sup := rootSupervisor{log: log}

	var pingerRef, pongerRef children.ChildRef

	pinger := children.New(sup, log.Named("pinger")).WithRedundancy(1).WithExec(
		func(children.BastionContext) children.Runnable {
			return children.RunnableFunc(func(bc children.BastionContext) error {
				if err := pongerRef.Tell(0); err != nil {
					return err
				}
				for {
					env, err := bc.Recv(bc.Context())
					if err != nil {
						return nil
					}
					n := env.Payload.(int) + 1
					fmt.Printf("ping %d\n", n)
					if err := pongerRef.Tell(n); err != nil {
						return nil
					}
				}
			})
		},
	)

	ponger := children.New(sup, log.Named("ponger")).WithRedundancy(1).WithExec(
		func(children.BastionContext) children.Runnable {
			return children.RunnableFunc(func(bc children.BastionContext) error {
				for {
					env, err := bc.Recv(bc.Context())
					if err != nil {
						return nil
					}
					n := env.Payload.(int) + 1
					fmt.Printf("pong %d\n", n)
					if err := pingerRef.Tell(n); err != nil {
						return nil
					}
				}
			})
		},
	)

	pinger.LaunchElems()
	ponger.LaunchElems()
	pingerRef = pinger.Ref().Elems()[0]
	pongerRef = ponger.Ref().Elems()[0]

	go func() {
		if err := pinger.Run(ctx); err != nil {
			log.Errorw("pinger group exited", "error", err)
		}
	}()
	go func() {
		if err := ponger.Run(ctx); err != nil {
			log.Errorw("ponger group exited", "error", err)
		}
	}()

	if err := pinger.Ref().Start(); err != nil {
		log.Errorw("failed to start pinger", "error", err)
	}
	if err := ponger.Ref().Start(); err != nil {
		log.Errorw("failed to start ponger", "error", err)
	}

	<-ctx.Done()
	_ = pinger.Ref().Stop()
	_ = ponger.Ref().Stop()
	time.Sleep(100 * time.Millisecond)
}
