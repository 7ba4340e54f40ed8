// Command laf is the framework's CLI client: it assembles a request envelope
// from argv/stdin/inline-YAML, then either invokes a locally registered
// handler directly ("lone" mode) or dispatches it to a hosted gateway
// ("client" mode), rendering the result or "_error" envelope as YAML.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/laf/cmd/laf-worker/handlers"
	"github.com/GoCodeAlone/laf/envelope"
	"github.com/GoCodeAlone/laf/family"
	"github.com/GoCodeAlone/laf/input"
	"github.com/GoCodeAlone/laf/laferrors"
	"github.com/GoCodeAlone/laf/lone"
	"github.com/GoCodeAlone/laf/logging"
	"github.com/GoCodeAlone/laf/policy"
	"github.com/GoCodeAlone/laf/remote"
	"github.com/GoCodeAlone/laf/reply"
	"github.com/GoCodeAlone/laf/specloader"
	"github.com/GoCodeAlone/laf/worker"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one CLI invocation and returns the process exit code. A
// UsageError or domain error renders an "_error" document but still exits 0,
// per §7 "CLI exit code policy"; only transport/internal failures exit 1.
func run(argv []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(argv) < 2 {
		fmt.Fprintln(os.Stderr, "usage: laf <lone> <verb> [flags] [pk[/path]] [--- yaml]")
		return 1
	}
	loneName, verb := argv[0], argv[1]

	flags, rest, err := input.ParseFrameworkFlags(argv[2:])
	if err != nil {
		renderError(&laferrors.UsageError{Msg: err.Error()}, loneName, verb)
		return 0
	}

	logger := logging.New(logging.Options{Debug: flags.Debug})

	baseDir := os.Getenv("LAF_HOME")
	if baseDir == "" {
		baseDir = "."
	}
	deployment := flags.Deployment
	if deployment == "" {
		deployment = os.Getenv("LAF_DEPLOYMENT")
	}

	fam, err := family.Load(baseDir, deployment)
	if err != nil {
		renderError(err, loneName, verb)
		return 1
	}

	if flags.Status != "" {
		return runStatus(ctx, flags)
	}

	optionsDoc, err := input.LoadOptionsDoc(fam.OptionsPath(loneName))
	if err != nil {
		renderError(err, loneName, verb)
		return 1
	}

	var pk input.PKPath
	var getoptObj map[string]any
	var positional []string
	if len(rest) > 0 && rest[0] != "---" {
		pk = input.ParsePK(rest[0])
		rest = rest[1:]
	}
	getoptObj, positional, err = input.ParseGetopt(rest, optionsDoc.Verbs[verb])
	if err != nil {
		renderError(&laferrors.UsageError{Msg: err.Error()}, loneName, verb)
		return 0
	}

	var yamlInput, stdinInput any
	if len(positional) > 0 && positional[0] == "---" {
		raw := []byte{}
		for _, piece := range positional[1:] {
			raw = append(raw, []byte(piece+"\n")...)
		}
		if len(raw) > 0 {
			_ = yaml.Unmarshal(raw, &yamlInput)
		}
	} else if !input.StdinIsTTY() {
		stdinInput, _ = input.ReadStdinYAML(input.Stdin)
	}

	sources := input.Sources{
		Default: input.DefaultInputFor(verb, optionsDoc.Default),
		Stdin:   stdinInput,
		Getopt:  getoptObj,
		YAML:    yamlInput,
	}
	merged := input.Assemble(sources)

	if input.NeedsPrompt(verb != "get" && verb != "delete", merged, pk.Stubbed()) {
		prompted, err := input.PromptForYAML(input.Stderr, input.Stdin)
		if err != nil {
			renderError(err, loneName, verb)
			return 1
		}
		sources.Stdin = prompted
		merged = input.Assemble(sources)
	}

	remoteMode := flags.Mode == "client" || flags.Servers != nil
	requests := input.BuildEnvelopes(loneName, verb, pk, merged)
	for _, req := range requests {
		req.Role = flags.Role
		req.CM = flags.CM
		req.Obo = flags.Obo
		req.Mode = envelope.ModeLone
		if remoteMode {
			req.Mode = envelope.ModeClient
		}
	}

	if remoteMode {
		return runRemote(ctx, flags, requests)
	}
	return runLocal(ctx, fam, loneName, requests, logger)
}

// runLocal drives the request envelope(s) straight through the per-request
// state machine in-process, per §4.F mode "lone".
func runLocal(ctx context.Context, fam *family.Descriptor, loneName string, requests []*envelope.Request, logger *slog.Logger) int {
	reg, err := specloader.NewRegistry(fam.OpenAPIDir(), logger)
	if err != nil {
		renderError(err, loneName, "")
		return 1
	}

	workerReg := worker.NewRegistry()
	ops := reg.Operations(loneName)
	descriptor := lone.NewDescriptor(loneName, specloader.Version{}, ops)
	handlers.Register(descriptor, ops)
	workerReg.AddLone(descriptor)

	rt := &worker.Runtime{
		Registry:     workerReg,
		Tasks:        worker.NewTaskStore(),
		FamilyID:     fam.ID,
		FamilyDeploy: fam.Deployment,
		Logger:       logger,
	}

	exitCode := 0
	for _, req := range requests {
		if err := policy.CheckCM(fam, req, req.Verb); err != nil {
			renderError(err, loneName, req.Verb)
			continue
		}
		rp := rt.Handle(ctx, req)
		if status := rp.StatusCode(); status >= 500 {
			exitCode = 1
		}
		renderReply(rp)
	}
	return exitCode
}

// runRemote dispatches each request envelope to a hosted gateway over the
// protocol named by --servers (only "http" is wired).
func runRemote(ctx context.Context, flags input.FrameworkFlags, requests []*envelope.Request) int {
	addrs := flags.Servers["http"]
	if len(addrs) == 0 {
		renderError(&laferrors.UsageError{Msg: "remote mode requires --servers http:<addr>"}, "", "")
		return 0
	}
	client := remote.NewClient("http://" + addrs[0])

	exitCode := 0
	for _, req := range requests {
		resp, err := client.Dispatch(ctx, req)
		if err != nil {
			renderError(err, req.Lone, req.Verb)
			exitCode = 1
			continue
		}
		if resp.Status >= 500 {
			exitCode = 1
		}

		body := resp.Body
		if req.Verb == "get" && resp.Status == 200 {
			body, err = collectPages(ctx, client, resp)
			if err != nil {
				renderError(err, req.Lone, req.Verb)
				exitCode = 1
				continue
			}
		}

		out, _ := yaml.Marshal(body)
		os.Stdout.Write(out)
	}
	return exitCode
}

// collectPages follows a paginated GET response's "_links._next.href" chain
// to exhaustion and returns the union of every page's "_elem" list, per
// §4.F. Responses without a "_elem" list (singular-resource GETs) are
// returned unchanged.
func collectPages(ctx context.Context, client *remote.Client, resp *remote.Response) (any, error) {
	doc, ok := resp.Body.(map[string]any)
	if !ok {
		return resp.Body, nil
	}
	elems, hasElem := doc["_elem"].([]any)
	if !hasElem {
		return resp.Body, nil
	}

	pages := client.FirstPage(resp)
	for {
		page, more, err := pages.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		pageDoc, ok := page.Body.(map[string]any)
		if !ok {
			break
		}
		if pageElems, ok := pageDoc["_elem"].([]any); ok {
			elems = append(elems, pageElems...)
		}
	}

	doc["_elem"] = elems
	delete(doc, "_links")
	return doc, nil
}

// runStatus services "--status <rqid>": a plain GET against the gateway's
// /status/<rqid> polling endpoint, per §4.D.
func runStatus(ctx context.Context, flags input.FrameworkFlags) int {
	addrs := flags.Servers["http"]
	if len(addrs) == 0 {
		renderError(&laferrors.UsageError{Msg: "--status requires --servers http:<addr>"}, "", "")
		return 0
	}
	client := remote.NewClient("http://" + addrs[0])
	resp, err := client.Dispatch(ctx, &envelope.Request{Verb: "get", Lone: "status", PK: &flags.Status})
	if err != nil {
		renderError(err, "status", "get")
		return 1
	}
	out, _ := yaml.Marshal(resp.Body)
	os.Stdout.Write(out)
	return 0
}

func renderReply(rp reply.Reply) {
	if value, ok := rp.Value(); ok {
		if value == nil {
			return
		}
		out, _ := yaml.Marshal(value)
		os.Stdout.Write(out)
		return
	}
	if payload, _, ok := rp.DomainError(); ok {
		out, _ := yaml.Marshal(payload)
		os.Stdout.Write(out)
		return
	}
	if err, ok := rp.InternalErr(); ok {
		renderError(err, "", "")
	}
}

func renderError(err error, loneName, verb string) {
	ctx := laferrors.Context{
		Where: filepath.Join(loneName, verb),
		Verb:  verb,
	}
	doc := laferrors.Render(err, ctx)
	out, _ := yaml.Marshal(doc)
	os.Stdout.Write(out)
}
