package safety

import "strings"

// Category groups commands for presentation and hook matching. It plays no
// part in the risk decision.
type Category int

const (
	CategoryOther Category = iota
	CategoryFileSystem
	CategoryNetwork
	CategoryProcess
	CategoryPackage
	CategoryGit
	CategoryBuild
	CategorySystem
	CategoryShell
)

var categoryNames = map[Category]string{
	CategoryOther:      "other",
	CategoryFileSystem: "filesystem",
	CategoryNetwork:    "network",
	CategoryProcess:    "process",
	CategoryPackage:    "package",
	CategoryGit:        "git",
	CategoryBuild:      "build",
	CategorySystem:     "system",
	CategoryShell:      "shell",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

var categoryByCommand = buildCategoryTable(map[Category][]string{
	CategoryFileSystem: {
		"ls", "dir", "cat", "head", "tail", "less", "more", "cp", "mv", "rm",
		"mkdir", "rmdir", "touch", "chmod", "chown", "ln", "find", "fd",
		"locate", "stat", "file",
	},
	CategoryNetwork: {
		"curl", "wget", "fetch", "nc", "netcat", "ssh", "scp", "sftp", "rsync",
		"ftp", "ping", "traceroute", "nslookup", "dig", "host", "nmap",
	},
	CategoryProcess: {
		"ps", "top", "htop", "kill", "killall", "pkill", "pgrep", "nice",
		"renice", "nohup", "timeout",
	},
	CategoryPackage: {
		"npm", "yarn", "pnpm", "pip", "pip3", "brew", "apt", "apt-get", "yum",
		"dnf", "pacman",
	},
	CategoryGit: {"git", "gh", "hub"},
	CategoryBuild: {
		"make", "cmake", "ninja", "meson", "cargo", "go", "gcc", "g++", "clang",
		"rustc", "javac", "tsc",
	},
	CategorySystem: {
		"sudo", "su", "systemctl", "service", "shutdown", "reboot", "mount",
		"umount", "fdisk", "parted",
	},
	CategoryShell: {
		"bash", "sh", "zsh", "fish", "csh", "tcsh", "dash", "source", ".",
		"exec", "eval",
	},
})

func buildCategoryTable(groups map[Category][]string) map[string]Category {
	table := make(map[string]Category)
	for cat, names := range groups {
		for _, name := range names {
			table[name] = cat
		}
	}
	return table
}

// Categorize maps the program a command line runs to its Category.
func Categorize(cmd string) Category {
	primary := PrimaryCommand(strings.ToLower(cmd))
	if cat, ok := categoryByCommand[primary]; ok {
		return cat
	}
	return CategoryOther
}
