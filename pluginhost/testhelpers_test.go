package pluginhost

import "os"

func writeExecutable(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0700)
}
