// Command jpc-shell is an interactive client REPL for manually driving a
// running jpc-peer: it connects, performs the start handshake, lists the
// mirrored classes/methods discovered from the remote seed object, and
// prompts the operator to pick and invoke one — useful for exercising the
// runtime's observable behavior by hand against a live peer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/benbucksch/jpc/classmirror"
	"github.com/benbucksch/jpc/dispatch"
	"github.com/benbucksch/jpc/registry"
	"github.com/benbucksch/jpc/transport/tcp"
)

func main() {
	var dialAddr string
	flag.StringVar(&dialAddr, "dial", "127.0.0.1:9800", "jpc-peer TCP address to connect to")
	flag.Parse()

	t, err := tcp.Dial(dialAddr)
	if err != nil {
		fmt.Println("dial: " + err.Error())
		os.Exit(1)
	}
	defer t.Close()

	objects := registry.New(registry.UUIDAllocator{})
	classes := classmirror.NewRegistry()
	core := dispatch.NewCore(t, objects, classes, nil)

	ctx := context.Background()
	seed, err := core.Start(ctx)
	if err != nil {
		fmt.Println("start handshake: " + err.Error())
		os.Exit(1)
	}

	stub, ok := seed.(*classmirror.Stub)
	if !ok {
		fmt.Printf("remote seed is not a classed object (got %T); nothing to explore interactively.\n", seed)
		return
	}
	fmt.Printf("connected; remote seed is a %s\n", stub.ClassName)
	runRepl(ctx, classes, stub)
}

func runRepl(ctx context.Context, classes *classmirror.Registry, stub *classmirror.Stub) {
	for {
		desc, ok := classes.ByName(stub.ClassName)
		if !ok {
			fmt.Println("no class description known for", stub.ClassName)
			return
		}
		choices := append([]string{}, desc.Functions...)
		for _, g := range desc.Getters {
			choices = append(choices, "get:"+g.Name)
			if g.HasSetter {
				choices = append(choices, "set:"+g.Name)
			}
		}
		choices = append(choices, "quit")

		var pick string
		prompt := &survey.Select{Message: "Call which member?", Options: choices}
		if err := survey.AskOne(prompt, &pick); err != nil {
			fmt.Println("input: " + err.Error())
			return
		}
		if pick == "quit" {
			return
		}

		result, err := invokePick(ctx, stub, pick)
		if err != nil {
			fmt.Println("error: " + err.Error())
			continue
		}
		fmt.Printf("=> %#v\n", result)
	}
}

func invokePick(ctx context.Context, stub *classmirror.Stub, pick string) (any, error) {
	switch {
	case strings.HasPrefix(pick, "get:"):
		return stub.Get(ctx, strings.TrimPrefix(pick, "get:"))
	case strings.HasPrefix(pick, "set:"):
		name := strings.TrimPrefix(pick, "set:")
		var value string
		if err := survey.AskOne(&survey.Input{Message: "Value for " + name + ":"}, &value); err != nil {
			return nil, err
		}
		return nil, stub.Set(ctx, name, value)
	default:
		var argLine string
		if err := survey.AskOne(&survey.Input{Message: "Args for " + pick + " (comma-separated, or blank):"}, &argLine); err != nil {
			return nil, err
		}
		return stub.Call(ctx, pick, splitArgs(argLine)...)
	}
}

func splitArgs(line string) []any {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	parts := strings.Split(line, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
