package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"

	"github.com/TURahim/collab-canvas-sub001/internal/auth"
	"github.com/TURahim/collab-canvas-sub001/internal/collab"
	"github.com/TURahim/collab-canvas-sub001/internal/model"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

const CollabCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Collab sync control.

The default url is ws://localhost:8080.

Usage:
    collabctl token --secret=<secret> --participant=<id>
        [--name=<name>] [--color=<color>] [--expiry=<expiry>]
    collabctl join --room=<room> [--url=<url>] [--token=<token>]
        [--name=<name>] [--duration=<duration>] [--draw] [--verbose]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --secret=<secret>        The server's JWT secret.
    --participant=<id>       Participant id to put in the token subject.
    --name=<name>            Display name.
    --color=<color>          Cursor color, e.g. #1971c2.
    --expiry=<expiry>        Token lifetime [default: 1h].
    --room=<room>            Room to join.
    --url=<url>              Server base url [default: ws://localhost:8080].
    --token=<token>          Access token. Joins anonymously when omitted.
    --duration=<duration>    Leave after this long. Runs until interrupted when omitted.
    --draw                   Create a rectangle and drag it around.
    --verbose                Log sync internals to stderr.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], CollabCtlVersion)
	if err != nil {
		panic(err)
	}

	if token, _ := opts.Bool("token"); token {
		printToken(opts)
	} else if join, _ := opts.Bool("join"); join {
		joinRoom(opts)
	}
}

// print a signed access token for a participant
func printToken(opts docopt.Opts) {
	secret, _ := opts.String("--secret")
	participant, _ := opts.String("--participant")
	name, _ := opts.String("--name")
	color, _ := opts.String("--color")
	expiryStr, _ := opts.String("--expiry")

	expiry, err := time.ParseDuration(expiryStr)
	if err != nil {
		Err.Fatalf("bad --expiry: %v", err)
	}

	m := auth.NewJWTManager(secret, expiry)
	signed, err := m.GenerateAccessToken(auth.Identity{
		ParticipantID: participant,
		DisplayName:   name,
		Color:         color,
	})
	if err != nil {
		Err.Fatalf("%v", err)
	}
	Out.Printf("%s", signed)
}

func joinRoom(opts docopt.Opts) {
	roomID, _ := opts.String("--room")
	baseURL, _ := opts.String("--url")
	tokenStr, _ := opts.String("--token")
	name, _ := opts.String("--name")
	durationStr, _ := opts.String("--duration")
	draw, _ := opts.Bool("--draw")
	verbose, _ := opts.Bool("--verbose")

	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if durationStr != "" {
		d, err := time.ParseDuration(durationStr)
		if err != nil {
			Err.Fatalf("bad --duration: %v", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	query := url.Values{}
	if tokenStr != "" {
		query.Set("token", tokenStr)
	}
	if name != "" {
		query.Set("name", name)
	}
	endpoint := fmt.Sprintf("%s/ws/rooms/%s?%s", baseURL, url.PathEscape(roomID), query.Encode())

	client, err := store.Dial(ctx, endpoint, nil, logger)
	if err != nil {
		Err.Fatalf("connect: %v", err)
	}
	hello := client.Hello()
	Out.Printf("joined %s as %s (%s)", roomID, hello.ParticipantID, hello.DisplayName)

	self := model.Participant{
		ParticipantID: hello.ParticipantID,
		DisplayName:   hello.DisplayName,
		Color:         hello.Color,
		Online:        true,
	}
	sess, err := collab.Open(ctx, client, roomID, self, collab.DefaultConfig(), collab.WithLogger(logger))
	if err != nil {
		client.Close()
		Err.Fatalf("open session: %v", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			Err.Printf("close: %v", err)
		}
		client.Close()
	}()

	for _, p := range sess.Participants() {
		Out.Printf("present: %s (%s)", p.ParticipantID, p.DisplayName)
	}
	Out.Printf("%d objects", len(sess.Objects()))

	var shapeID string
	if draw {
		props, _ := json.Marshal(map[string]float64{"x": 0, "y": 0, "w": 80, "h": 40})
		obj, err := sess.CreateObject(model.Object{Type: "rect", Props: props})
		if err != nil {
			Err.Fatalf("create: %v", err)
		}
		shapeID = obj.ObjectID
		if err := sess.StartDrag(shapeID, 0, 0); err != nil {
			Err.Printf("drag: %v", err)
		}
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			if shapeID != "" {
				sess.EndDrag(shapeID)
			}
			return
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			printEvent(ev)
			if _, lost := ev.(collab.Disconnected); lost {
				return
			}
		case now := <-ticker.C:
			// trace a circle
			t := now.Sub(start).Seconds()
			x, y := 200+100*math.Cos(t), 200+100*math.Sin(t)
			sess.MoveCursor(x, y)
			if shapeID != "" {
				sess.UpdateDrag(shapeID, x, y)
			}
		}
	}
}

func printEvent(ev collab.Event) {
	switch e := ev.(type) {
	case collab.ObjectsChanged:
		for _, o := range e.Upserted {
			Out.Printf("object %s %s by %s", o.ObjectID, o.Type, o.LastModifiedBy)
		}
		for _, id := range e.Removed {
			Out.Printf("object %s removed", id)
		}
	case collab.PresenceChanged:
		for _, id := range e.Joined {
			Out.Printf("joined: %s", id)
		}
		for _, id := range e.Left {
			Out.Printf("left: %s", id)
		}
	case collab.DragEnded:
		Out.Printf("drag of %s by %s ended (abandoned=%t)", e.ObjectID, e.ParticipantID, e.Abandoned)
	case collab.Warning:
		Out.Printf("warning: %s %s: %v", e.Op, e.Path, e.Err)
	case collab.Disconnected:
		Out.Printf("disconnected: %v", e.Err)
	}
}
