package profile

// Notifier is the user-facing notification surface. Banner is the persistent
// blocking error state (fatal sync loss); Toast reports discrete actions.
// System-type log failures go to neither: they are swallowed and only logged.
type Notifier interface {
	Banner(msg string)
	ClearBanner()
	Toast(ok bool, msg string)
}

type NopNotifier struct{}

func (NopNotifier) Banner(string)      {}
func (NopNotifier) ClearBanner()       {}
func (NopNotifier) Toast(bool, string) {}
