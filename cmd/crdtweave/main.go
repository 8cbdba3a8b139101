// Command crdtweave is the CLI entrypoint for the replication engine: a
// long-running peer (serve) and an offline document inspector (inspect),
// replacing the teacher's Wails desktop bootstrap now that the core is a
// library rather than a GUI application (§1's "Environment/CLI: None; the
// core is a library" plus the SPEC_FULL ambient-CLI addition).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"crdtweave/backend/codec"
	"crdtweave/backend/config"
	"crdtweave/backend/docset"
	"crdtweave/backend/frontend"
	"crdtweave/backend/logging"
	"crdtweave/backend/transport/udp"
	"crdtweave/backend/types"
)

const defaultDocId = "default"

func main() {
	app := &cli.App{
		Name:  "crdtweave",
		Usage: "a local-first CRDT document replication engine",
		Commands: []*cli.Command{
			serveCommand(),
			inspectCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a replica, syncing one document with a set of peers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "local UDP address to listen on", Value: "127.0.0.1:0"},
			&cli.StringSliceFlag{Name: "peer", Usage: "peer address to sync with (repeatable)"},
			&cli.StringFlag{Name: "doc", Usage: "path to the document's persisted columnar file", Required: true},
			&cli.DurationFlag{Name: "anti-entropy", Usage: "anti-entropy interval", Value: 5 * time.Second},
			&cli.DurationFlag{Name: "heartbeat", Usage: "heartbeat interval", Value: 10 * time.Second},
			&cli.Float64Flag{Name: "bloom-fpr", Usage: "target Bloom filter false-positive rate", Value: 0.01},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	log := logging.New(logging.ConsoleWriter, zerolog.InfoLevel)

	doc, err := loadOrCreateDoc(c.String("doc"))
	if err != nil {
		return xerrors.Errorf("crdtweave serve: %v", err)
	}

	tr := udp.New()
	sock, err := tr.CreateSocket(c.String("addr"))
	if err != nil {
		return xerrors.Errorf("crdtweave serve: create socket: %v", err)
	}
	defer sock.Close()

	docs := docset.New()
	docs.Put(defaultDocId, doc)

	conf := config.Configuration{
		ActorId:                doc.GetActorId(),
		Socket:                 sock,
		AntiEntropyInterval:    c.Duration("anti-entropy"),
		HeartbeatInterval:      c.Duration("heartbeat"),
		BloomFalsePositiveRate: c.Float64("bloom-fpr"),
		RecvTimeout:            time.Second,
	}

	connection := docset.NewConnection(conf, docs)
	for _, p := range c.StringSlice("peer") {
		connection.AddPeer(p)
	}

	if err := connection.Start(); err != nil {
		return xerrors.Errorf("crdtweave serve: start: %v", err)
	}
	log.Info().Msgf("serving actor %s on %s", doc.GetActorId(), sock.GetAddress())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	if err := connection.Stop(); err != nil {
		log.Error().Err(err).Msg("stop failed")
	}

	return saveDoc(c.String("doc"), doc)
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print a summary of a persisted document file",
		ArgsUsage: "<file>",
		Action:    runInspect,
	}
}

func runInspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return xerrors.Errorf("crdtweave inspect: expected exactly one file argument")
	}
	path := c.Args().First()

	buf, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("crdtweave inspect: read %s: %v", path, err)
	}
	changes, err := codec.DecodeDocument(buf)
	if err != nil {
		return xerrors.Errorf("crdtweave inspect: decode: %v", err)
	}

	doc := frontend.New(types.RootActor)
	for _, ch := range changes {
		if _, err := doc.ReceiveChange(ch); err != nil {
			return xerrors.Errorf("crdtweave inspect: replay: %v", err)
		}
	}

	fmt.Printf("changes: %d\n", len(changes))
	fmt.Printf("heads: %v\n", doc.Heads())
	root := doc.Root()
	fmt.Println("root keys:")
	for k, v := range root.Map {
		fmt.Printf("  %s = %+v\n", k, v)
	}
	return nil
}

func loadOrCreateDoc(path string) (*frontend.Doc, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return frontend.New(types.NewActorId()), nil
	}
	if err != nil {
		return nil, xerrors.Errorf("read %s: %v", path, err)
	}
	changes, err := codec.DecodeDocument(buf)
	if err != nil {
		return nil, xerrors.Errorf("decode %s: %v", path, err)
	}
	doc := frontend.New(types.NewActorId())
	for _, ch := range changes {
		if _, err := doc.ReceiveChange(ch); err != nil {
			return nil, xerrors.Errorf("replay %s: %v", path, err)
		}
	}
	return doc, nil
}

func saveDoc(path string, doc *frontend.Doc) error {
	changes := doc.History().GetChanges(nil)
	buf := codec.EncodeDocument(changes, codec.HashChange)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return xerrors.Errorf("crdtweave: save %s: %v", path, err)
	}
	return nil
}
