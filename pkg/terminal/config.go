package terminal

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/crossdev/gdbboot/pkg/config"
)

func configureCmd(t *Term, args string) error {
	switch args {
	case "-list":
		out, err := yaml.Marshal(t.conf)
		if err != nil {
			return err
		}
		_, err = t.stdout.Write(out)
		return err
	case "-save":
		return config.SaveConfig(t.conf)
	case "":
		return fmt.Errorf("wrong number of arguments to \"config\"")
	default:
		return fmt.Errorf("unknown config option %q", args)
	}
}
