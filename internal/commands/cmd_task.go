package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/hivesync/internal/client"
	"github.com/colonyops/hivesync/internal/core/task"
	"github.com/colonyops/hivesync/internal/printer"
	"github.com/colonyops/hivesync/pkg/iojson"
)

type TaskCmd struct {
	flags *Flags

	project     string
	title       string
	description string
	status      string
	executor    string
	branch      string
}

// NewTaskCmd creates a new task command
func NewTaskCmd(flags *Flags) *TaskCmd {
	return &TaskCmd{flags: flags}
}

// Register adds the task command to the application
func (cmd *TaskCmd) Register(app *cli.Command) *cli.Command {
	projectFlag := &cli.StringFlag{
		Name:        "project",
		Aliases:     []string{"p"},
		Usage:       "project id",
		Required:    true,
		Destination: &cmd.project,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "task",
		Usage: "Manage tasks on a running server",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the visible tasks of a project",
				UsageText: "hivesync task list --project <id>",
				Flags:     []cli.Flag{projectFlag},
				Action:    cmd.runList,
			},
			{
				Name:      "create",
				Usage:     "Create a task",
				UsageText: "hivesync task create --project <id> --title <title> [options]",
				Flags: []cli.Flag{
					projectFlag,
					&cli.StringFlag{Name: "title", Usage: "task title", Required: true, Destination: &cmd.title},
					&cli.StringFlag{Name: "description", Usage: "task description", Destination: &cmd.description},
					&cli.StringFlag{Name: "status", Usage: "initial status (defaults to todo)", Destination: &cmd.status},
				},
				Action: cmd.runCreate,
			},
			{
				Name:      "update",
				Usage:     "Update a task's fields",
				UsageText: "hivesync task update [options] <task-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "new title", Destination: &cmd.title},
					&cli.StringFlag{Name: "description", Usage: "new description", Destination: &cmd.description},
					&cli.StringFlag{Name: "status", Usage: "new status", Destination: &cmd.status},
				},
				Action: cmd.runUpdate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a task and everything under it",
				UsageText: "hivesync task delete <task-id>",
				Action:    cmd.runDelete,
			},
			{
				Name:      "attempt",
				Usage:     "Start an attempt for a task",
				UsageText: "hivesync task attempt [options] <task-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "executor", Usage: "agent executor", Value: "claude", Destination: &cmd.executor},
					&cli.StringFlag{Name: "branch", Usage: "working branch", Destination: &cmd.branch},
				},
				Action: cmd.runAttempt,
			},
		},
	})

	return app
}

func (cmd *TaskCmd) input() client.TaskInput {
	return client.TaskInput{
		Title:       cmd.title,
		Description: cmd.description,
		Status:      task.Status(cmd.status),
	}
}

func (cmd *TaskCmd) runList(ctx context.Context, c *cli.Command) error {
	tasks, err := cmd.flags.Client().Tasks(ctx, cmd.project)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, tasks)
}

func (cmd *TaskCmd) runCreate(ctx context.Context, c *cli.Command) error {
	t, err := cmd.flags.Client().CreateTask(ctx, cmd.project, cmd.input())
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, t)
}

func (cmd *TaskCmd) runUpdate(ctx context.Context, c *cli.Command) error {
	id, err := singleArg(c, "task id")
	if err != nil {
		return err
	}

	t, err := cmd.flags.Client().UpdateTask(ctx, id, cmd.input())
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, t)
}

func (cmd *TaskCmd) runDelete(ctx context.Context, c *cli.Command) error {
	id, err := singleArg(c, "task id")
	if err != nil {
		return err
	}

	if err := cmd.flags.Client().DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	printer.Ctx(ctx).Successf("Deleted task %s", id)
	return nil
}

func (cmd *TaskCmd) runAttempt(ctx context.Context, c *cli.Command) error {
	id, err := singleArg(c, "task id")
	if err != nil {
		return err
	}

	a, err := cmd.flags.Client().CreateAttempt(ctx, id, cmd.executor, cmd.branch)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, a)
}

func singleArg(c *cli.Command, name string) (string, error) {
	if c.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one argument: %s", name)
	}
	return c.Args().First(), nil
}
