package extensions

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/command"
)

type Image struct {
	log logrus.FieldLogger
}

func (i *Image) Name() string { return "image" }

func (i *Image) Commands() map[string]command.Handler {
	return map[string]command.Handler{
		"install_bootloader": command.AsyncHandler(command.Typed(i.installBootloader)),
	}
}

type installBootloaderArgs struct {
	RootUUID                string `json:"root_uuid"`
	EFISystemPartUUID       string `json:"efi_system_part_uuid"`
	PrepBootPartUUID        string `json:"prep_boot_part_uuid"`
	TargetBootMode          string `json:"target_boot_mode"`
	IgnoreBootloaderFailure *bool  `json:"ignore_bootloader_failure"`
}

func (i *Image) installBootloader(_ context.Context, args installBootloaderArgs) (any, error) {
	mode := args.TargetBootMode
	if mode == "" {
		mode = "bios"
	}
	i.log.WithFields(logrus.Fields{"root_uuid": args.RootUUID, "boot_mode": mode}).Debug("installing bootloader")
	return nil, nil
}
