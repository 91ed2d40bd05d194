package safety

// dangerousPattern is a lowercase substring that marks a command as
// destructive on sight.
type dangerousPattern struct {
	pattern string
	reason  string
}

var dangerousPatterns = []dangerousPattern{
	{"rm -rf /", "Attempts to recursively delete root filesystem"},
	{"rm -rf /*", "Attempts to recursively delete all root directories"},
	{"rm -rf ~", "Attempts to recursively delete home directory"},
	{"rm -rf $home", "Attempts to recursively delete home directory"},
	{":(){ :|:& };:", "Fork bomb - will crash the system"},
	{"dd if=/dev/zero of=/dev/", "Will overwrite disk device"},
	{"mkfs.", "Will format a filesystem"},
	{"> /dev/sd", "Will overwrite disk device"},
	{"chmod -r 777 /", "Dangerous permission change on root"},
	{"chown -r", "Recursive ownership change - potentially dangerous"},
	{"curl | sh", "Piping remote script directly to shell"},
	{"curl | bash", "Piping remote script directly to shell"},
	{"wget -o - | sh", "Piping remote script directly to shell"},
	{"sudo rm -rf", "Privileged recursive deletion"},
	{"sudo dd", "Privileged disk operation"},
	{"shutdown", "System shutdown command"},
	{"reboot", "System reboot command"},
	{"halt", "System halt command"},
	{"poweroff", "System poweroff command"},
	{"init 0", "System shutdown via init"},
	{"init 6", "System reboot via init"},
	{"kill -9 1", "Killing init process"},
	{"killall", "Killing processes by name"},
	{"pkill", "Killing processes by pattern"},
	{"docker rm -f $(docker ps -aq)", "Removing all Docker containers"},
	{"docker system prune -a", "Removing all Docker data"},
	{":(){:|:&};:", "Fork bomb variant"},
	{"mv /* ", "Moving root filesystem contents"},
	{"cat /dev/urandom > /dev/", "Writing random data to device"},
}

var privilegedCommands = map[string]struct{}{
	"sudo":    {},
	"su":      {},
	"doas":    {},
	"pkexec":  {},
	"gksudo":  {},
	"kdesudo": {},
}

// safeCommands are read-only. Entries match a whole leading word sequence of
// the command, so "git status" matches "git status -s" but "cat" does not
// match "catalog".
var safeCommands = []string{
	"ls", "dir", "pwd", "cd", "cat", "head", "tail", "less", "more",
	"grep", "rg", "ag", "find", "fd", "which", "whereis", "type",
	"echo", "printf", "date", "cal", "uptime", "whoami", "id", "hostname",
	"uname", "env", "printenv", "set", "ps", "top", "htop", "df", "du",
	"free", "vmstat", "wc", "sort", "uniq", "cut", "tr", "awk", "sed",
	"diff", "file", "stat", "md5", "sha1sum", "sha256sum",
	"git status", "git log", "git diff", "git show", "git branch",
	"git remote", "git tag", "git stash list",
	"npm list", "npm ls", "npm outdated", "npm view",
	"cargo check", "cargo test", "cargo build", "cargo doc",
	"python --version", "node --version", "rustc --version",
	"man", "help", "info",
}

// workspaceSafeCommands modify files but stay inside the working tree.
var workspaceSafeCommands = []string{
	"mkdir", "touch", "cp", "mv",
	"git add", "git commit", "git checkout", "git switch", "git restore",
	"git merge", "git rebase", "git cherry-pick", "git reset --soft",
	"npm install", "npm ci", "npm update",
	"cargo build", "cargo run", "cargo test", "cargo fmt",
	"pip install", "pip uninstall",
	"make", "cmake", "ninja",
}

var networkCommands = map[string]struct{}{
	"curl": {}, "wget": {}, "fetch": {}, "nc": {}, "netcat": {}, "ncat": {},
	"ssh": {}, "scp": {}, "sftp": {}, "rsync": {}, "ftp": {}, "ping": {},
	"traceroute": {}, "nslookup": {}, "dig": {}, "host": {}, "nmap": {},
	"masscan": {}, "tcpdump": {}, "wireshark": {},
}
