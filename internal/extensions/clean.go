package extensions

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/command"
)

const hardwareManagerVersion = "1.1"

type CleanStep struct {
	Step            string `json:"step"`
	Priority        int    `json:"priority"`
	Interface       string `json:"interface"`
	RebootRequested bool   `json:"reboot_requested"`
	Abortable       bool   `json:"abortable"`
}

func genericCleanSteps() map[string][]CleanStep {
	return map[string][]CleanStep{
		"GenericHardwareManager": {
			{Step: "erase_devices", Priority: 10, Interface: "deploy", Abortable: true},
			{Step: "erase_devices_metadata", Priority: 99, Interface: "deploy", Abortable: true},
		},
	}
}

type Clean struct {
	log logrus.FieldLogger
}

func (c *Clean) Name() string { return "clean" }

func (c *Clean) Commands() map[string]command.Handler {
	return map[string]command.Handler{
		"get_clean_steps":    command.SyncHandler(command.Typed(c.getCleanSteps)),
		"execute_clean_step": command.AsyncHandler(command.Typed(c.executeCleanStep)),
	}
}

type getCleanStepsArgs struct {
	Node  map[string]any `json:"node"`
	Ports []any          `json:"ports"`
}

func (c *Clean) getCleanSteps(_ context.Context, args getCleanStepsArgs) (any, error) {
	c.log.WithFields(logrus.Fields{"node": args.Node["uuid"], "ports": len(args.Ports)}).Debug("getting clean steps")
	return map[string]any{
		"clean_steps": genericCleanSteps(),
		"hardware_manager_version": map[string]string{
			"fake_hardware_manager": hardwareManagerVersion,
		},
	}, nil
}

type executeCleanStepArgs struct {
	Step         map[string]any `json:"step"`
	Node         map[string]any `json:"node"`
	Ports        []any          `json:"ports"`
	CleanVersion map[string]any `json:"clean_version"`
}

func (c *Clean) executeCleanStep(_ context.Context, args executeCleanStepArgs) (any, error) {
	c.log.WithField("step", args.Step).Debug("executing clean step")
	if _, ok := args.Step["step"]; !ok {
		return nil, fmt.Errorf("malformed clean_step, no \"step\" key: %v", args.Step)
	}
	result := map[string]any{}
	c.log.WithField("step", args.Step["step"]).Info("clean step completed")
	return map[string]any{
		"clean_result": result,
		"clean_step":   args.Step,
	}, nil
}
