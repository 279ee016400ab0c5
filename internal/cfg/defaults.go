/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package cfg

import (
	"os"
	"os/user"
	"path/filepath"
)

func defaultSettings() map[string]string {
	settings := make(map[string]string)

	settings["host"] = defaultHost()
	settings["port"] = "5432"

	// Default to the OS user name. Purposely ignoring err getting user name from
	// OS. The client application will simply have to specify the user in that
	// case (which they typically will be doing anyway).
	u, err := user.Current()
	if err == nil {
		settings["user"] = u.Username
		settings["passfile"] = filepath.Join(u.HomeDir, ".pgpass")
		settings["servicefile"] = filepath.Join(u.HomeDir, ".pg_service.conf")
	}

	settings["target_session_attrs"] = "any"

	settings["min_read_buffer_size"] = "8192"

	return settings
}

// defaultHost attempts to mimic libpq's default host. libpq uses the default unix socket location on *nix and localhost
// on Windows. The default socket location is compiled into libpq. Since Go does not have a preprocessor, default to
// localhost when the socket directory cannot be found.
func defaultHost() string {
	candidatePaths := []string{
		"/var/run/postgresql", // Debian
		"/private/tmp",        // OSX - homebrew
		"/tmp",                // standard PostgreSQL
	}

	for _, path := range candidatePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "localhost"
}
