package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/hivesync/internal/client"
	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/stream"
	"github.com/colonyops/hivesync/internal/printer"
	"github.com/colonyops/hivesync/pkg/iojson"
)

// optimisticTTL bounds how long a locally assumed draft state is shown
// before the server has confirmed it.
const optimisticTTL = 5 * time.Second

type DraftCmd struct {
	flags *Flags

	prompt  string
	variant string
	images  []string
	wait    bool
	timeout time.Duration
	content iojson.FileReader[draft.Content]
}

// NewDraftCmd creates a new draft command
func NewDraftCmd(flags *Flags) *DraftCmd {
	return &DraftCmd{flags: flags}
}

// Register adds the draft command to the application
func (cmd *DraftCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "draft",
		Usage: "Edit, queue and send follow-up drafts",
		Description: `Every attempt has at most one follow-up draft. A draft is edited freely,
then either sent immediately while the agent is idle or queued to be sent
automatically when the agent's current turn ends.`,
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show an attempt's draft and its state",
				UsageText: "hivesync draft show <attempt-id>",
				Action:    cmd.runShow,
			},
			{
				Name:      "edit",
				Usage:     "Replace the draft's content",
				UsageText: "hivesync draft edit [--prompt <text>] [--variant <v>] [--image <id>]... <attempt-id>",
				Description: `Content is taken from the flags when any is given. Otherwise a JSON
object {"prompt","variant","image_ids"} is read from --file or stdin.`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prompt", Usage: "follow-up prompt", Destination: &cmd.prompt},
					&cli.StringFlag{Name: "variant", Usage: "executor variant", Destination: &cmd.variant},
					&cli.StringSliceFlag{Name: "image", Usage: "attached image id (repeatable)", Destination: &cmd.images},
					cmd.content.Flag(),
				},
				Action: cmd.runEdit,
			},
			{
				Name:      "queue",
				Usage:     "Queue the draft to send when the current turn ends",
				UsageText: "hivesync draft queue [--wait] <attempt-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "wait", Usage: "follow the draft until it is sent or fails", Destination: &cmd.wait},
					&cli.DurationFlag{Name: "timeout", Usage: "give up waiting after this long (0 waits forever)", Destination: &cmd.timeout},
				},
				Action: cmd.runQueue,
			},
			{
				Name:      "unqueue",
				Usage:     "Take a queued draft back to editing",
				UsageText: "hivesync draft unqueue <attempt-id>",
				Action:    cmd.runUnqueue,
			},
			{
				Name:      "send",
				Usage:     "Send the draft now",
				UsageText: "hivesync draft send <attempt-id>",
				Action:    cmd.runSend,
			},
		},
	})

	return app
}

func (cmd *DraftCmd) runShow(ctx context.Context, c *cli.Command) error {
	id, err := singleArg(c, "attempt id")
	if err != nil {
		return err
	}

	st, err := cmd.flags.Client().Draft(ctx, id)
	if err != nil {
		return fmt.Errorf("get draft: %w", err)
	}
	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, st)
}

func (cmd *DraftCmd) runEdit(ctx context.Context, c *cli.Command) error {
	id, err := singleArg(c, "attempt id")
	if err != nil {
		return err
	}

	content := draft.Content{Prompt: cmd.prompt, Variant: cmd.variant, ImageIDs: cmd.images}
	if !c.IsSet("prompt") && !c.IsSet("variant") && !c.IsSet("image") {
		content, err = cmd.content.Read()
		if err != nil {
			return err
		}
	}

	st, err := cmd.flags.Client().EditDraft(ctx, id, content)
	if err != nil {
		return fmt.Errorf("edit draft: %w", err)
	}
	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, st)
}

func (cmd *DraftCmd) runUnqueue(ctx context.Context, c *cli.Command) error {
	return cmd.action(ctx, c, "unqueue", cmd.flags.Client().UnqueueDraft)
}

func (cmd *DraftCmd) runSend(ctx context.Context, c *cli.Command) error {
	return cmd.action(ctx, c, "send", cmd.flags.Client().SendDraft)
}

func (cmd *DraftCmd) action(ctx context.Context, c *cli.Command, verb string, fn func(context.Context, string) (draft.Status, error)) error {
	id, err := singleArg(c, "attempt id")
	if err != nil {
		return err
	}

	st, err := fn(ctx, id)
	if err != nil {
		return fmt.Errorf("%s draft: %w", verb, err)
	}
	printer.Ctx(ctx).Successf("Draft for %s is %s", id, st.State)
	return nil
}

func (cmd *DraftCmd) runQueue(ctx context.Context, c *cli.Command) error {
	id, err := singleArg(c, "attempt id")
	if err != nil {
		return err
	}

	api := cmd.flags.Client()
	p := printer.Ctx(ctx)

	st, err := api.QueueDraft(ctx, id)
	if err != nil {
		return fmt.Errorf("queue draft: %w", err)
	}
	p.Successf("Draft for %s is %s", id, st.State)

	if !cmd.wait {
		return nil
	}

	attempt, err := api.Attempt(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve attempt: %w", err)
	}

	if cmd.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.timeout)
		defer cancel()
	}

	return followDraft(ctx, p, cmd.flags.ServerURL, attempt.ProjectID, id, st.State)
}

// errDraftSettled stops the reconciler once the draft leaves the queue.
var errDraftSettled = errors.New("draft settled")

// followDraft mirrors the project's drafts until the attempt's draft is
// neither queued nor sending. The queue response is shown as a local
// override until the stream confirms it.
func followDraft(ctx context.Context, p *printer.Printer, serverURL, projectID, attemptID string, initial draft.State) error {
	state := client.NewOverride(draft.StateEditing)
	state.Set(initial, optimisticTTL)
	shown := initial

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var result error
	r := client.NewReconciler(serverURL, stream.NewTopic(stream.KindDrafts, projectID))
	err := r.Run(ctx, func(u client.Update) {
		var drafts map[string]draft.Draft
		if err := decodeValue(u, &drafts); err != nil {
			result = err
			cancel(errDraftSettled)
			return
		}

		d, ok := drafts[attemptID]
		switch {
		case !ok:
			state.Observe(draft.StateIdle)
		default:
			state.Observe(d.State())
		}

		if v := state.Value(); v != shown {
			shown = v
			p.Infof("Draft for %s is %s", attemptID, v)
		}

		switch {
		case !ok:
			p.Successf("Follow-up sent")
			cancel(errDraftSettled)
		case !d.Queued && !d.Sending:
			if d.Error != "" {
				result = fmt.Errorf("follow-up failed: %s", d.Error)
			} else {
				result = fmt.Errorf("draft was unqueued")
			}
			cancel(errDraftSettled)
		}
	})

	if errors.Is(context.Cause(ctx), errDraftSettled) {
		return result
	}
	return err
}

func decodeValue(u client.Update, v any) error {
	if len(u.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(u.Value, v); err != nil {
		return fmt.Errorf("decode %s: %w", u.Topic, err)
	}
	return nil
}
