// Package remote runs shell commands on an instance through SSM Run Command.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/praetorian-inc/cloudshovel/pkg/aws/api"
	awserrors "github.com/praetorian-inc/cloudshovel/pkg/aws/errors"
	"github.com/praetorian-inc/cloudshovel/pkg/waiter"
)

const (
	DocumentShellScript  = "AWS-RunShellScript"
	DocumentRemoteScript = "AWS-RunRemoteScript"
)

var ErrCommandFailed = errors.New("remote command did not succeed")

// Command is one SSM document invocation.
type Command struct {
	Document   string
	Parameters map[string][]string
}

// Shell builds an AWS-RunShellScript command running lines in order.
func Shell(lines ...string) Command {
	return Command{
		Document:   DocumentShellScript,
		Parameters: map[string][]string{"commands": lines},
	}
}

// Invocation is the observed result of a command on one instance.
type Invocation struct {
	CommandID string
	Status    ssmtypes.CommandInvocationStatus
	Stdout    string
	Stderr    string
}

func (i Invocation) Succeeded() bool {
	return i.Status == ssmtypes.CommandInvocationStatusSuccess
}

// Terminal reports whether the invocation finished, one way or another.
func (i Invocation) Terminal() bool {
	switch i.Status {
	case ssmtypes.CommandInvocationStatusSuccess,
		ssmtypes.CommandInvocationStatusCancelled,
		ssmtypes.CommandInvocationStatusTimedOut,
		ssmtypes.CommandInvocationStatusFailed:
		return true
	}
	return false
}

type Executor struct {
	client api.SSMAPI
	sleep  waiter.SleepFunc
}

func NewExecutor(client api.SSMAPI, sleep waiter.SleepFunc) *Executor {
	return &Executor{client: client, sleep: sleep}
}

// Submit sends cmd to instanceID and returns the command id.
func (e *Executor) Submit(ctx context.Context, instanceID string, cmd Command) (string, error) {
	out, err := e.client.SendCommand(ctx, &ssm.SendCommandInput{
		InstanceIds:  []string{instanceID},
		DocumentName: aws.String(cmd.Document),
		Parameters:   cmd.Parameters,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send %s to %s: %w", cmd.Document, instanceID, err)
	}
	if out.Command == nil || out.Command.CommandId == nil {
		return "", fmt.Errorf("send %s to %s returned no command id", cmd.Document, instanceID)
	}

	commandID := aws.ToString(out.Command.CommandId)
	slog.DebugContext(ctx, "Remote command submitted", "instance", instanceID, "document", cmd.Document, "command_id", commandID)
	return commandID, nil
}

// Await blocks until the command reaches a terminal status on instanceID.
// The invocation may not be visible right after Submit; that counts as pending.
func (e *Executor) Await(ctx context.Context, instanceID, commandID string, cfg waiter.Config) (Invocation, error) {
	return waiter.Until(ctx, cfg, e.sleep, "command "+commandID,
		func(ctx context.Context) (Invocation, error) {
			out, err := e.client.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
				CommandId:  aws.String(commandID),
				InstanceId: aws.String(instanceID),
			})
			if err != nil {
				if awserrors.IsNotFound(err) {
					return Invocation{CommandID: commandID, Status: ssmtypes.CommandInvocationStatusPending}, nil
				}
				return Invocation{}, err
			}
			return Invocation{
				CommandID: commandID,
				Status:    out.Status,
				Stdout:    aws.ToString(out.StandardOutputContent),
				Stderr:    aws.ToString(out.StandardErrorContent),
			}, nil
		},
		Invocation.Terminal)
}

// Run submits cmd, waits for it and fails with ErrCommandFailed unless the
// invocation succeeded.
func (e *Executor) Run(ctx context.Context, instanceID string, cmd Command, cfg waiter.Config) (Invocation, error) {
	commandID, err := e.Submit(ctx, instanceID, cmd)
	if err != nil {
		return Invocation{}, err
	}

	inv, err := e.Await(ctx, instanceID, commandID, cfg)
	if err != nil {
		return inv, err
	}
	slog.DebugContext(ctx, "Remote command finished", "command_id", commandID, "status", inv.Status, "stdout", inv.Stdout)

	if !inv.Succeeded() {
		return inv, fmt.Errorf("%w: command %s finished with status %s: %s", ErrCommandFailed, commandID, inv.Status, inv.Stderr)
	}
	return inv, nil
}
