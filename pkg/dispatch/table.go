// Package dispatch turns inbound service messages into handler invocations.
package dispatch

import (
    "go.uber.org/zap"

    "coapp/pkg/handlers"
    "coapp/pkg/packages"
    "coapp/pkg/protocol/message"
)

// Disconnector drops the service connection.
type Disconnector interface {
    Disconnect()
}

type route struct {
    invoke func(t *Table, m *message.Message, h *handlers.Messages)
    // stop ends the call's dispatch loop after invoke.
    stop bool
}

// Table routes messages to the resolved handler set. It is safe for
// concurrent use by many dispatch loops.
type Table struct {
    cache *packages.Cache
    conn  Disconnector
}

// New returns a table that records packages in cache and calls
// conn.Disconnect when the service announces a restart. Either may be nil.
func New(cache *packages.Cache, conn Disconnector) *Table {
    return &Table{cache: cache, conn: conn}
}

// Known reports whether cmd has a route.
func Known(cmd string) bool { _, ok := routes[cmd]; return ok }

// Route invokes the handler for msg from chain. Commands without a route are
// logged and skipped so newer services can add notices; continueLoop is false
// once the call is over.
func (t *Table) Route(msg *message.Message, chain handlers.Chain) (handled, continueLoop bool) {
    return t.Dispatch(msg, chain.Resolve())
}

// Dispatch is Route with an already resolved handler set; every slot of h
// must be set.
func (t *Table) Dispatch(msg *message.Message, h *handlers.Messages) (handled, continueLoop bool) {
    r, ok := routes[msg.Command]
    if !ok {
        zap.L().Warn("unrecognised command from service", zap.String("cmd", msg.Command), zap.String("msg", msg.Short()))
        return true, true
    }
    r.invoke(t, msg, h)
    return true, !r.stop
}

// pkg returns the cached record for a package-bearing message. When the
// cache is absent or refuses the record, the record is built from the
// message alone by fallback.
func (t *Table) pkg(name string, merge func(*packages.Cache) (*packages.Package, error), fallback func() *packages.Package) *packages.Package {
    if t.cache != nil {
        p, err := merge(t.cache)
        if err == nil { return p }
        zap.L().Warn("package cache update failed", zap.String("name", name), zap.Error(err))
    }
    return fallback()
}

func (t *Table) ref(name string) *packages.Package {
    return t.pkg(name,
        func(c *packages.Cache) (*packages.Package, error) { return c.Reference(name) },
        func() *packages.Package { return &packages.Package{CanonicalName: name} })
}

var routes = map[string]route{
    CmdFailedPackageInstall: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.FailedPackageInstall(m.String("canonical-name"), m.String("filename"), m.String("reason"))
    }},
    CmdFailedPackageRemove: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.FailedPackageRemove(m.String("canonical-name"), m.String("reason"))
    }},
    CmdFeedAdded:      {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.FeedAdded(m.String("location")) }},
    CmdFeedRemoved:    {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.FeedRemoved(m.String("location")) }},
    CmdFeedSuppressed: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.FeedSuppressed(m.String("location")) }},
    CmdFileNotFound:   {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.FileNotFound(m.String("filename")) }},
    CmdFoundFeed:      {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.FoundFeed(packages.FeedFromMessage(m)) }},
    CmdFoundPackage: {invoke: func(t *Table, m *message.Message, h *handlers.Messages) {
        name := m.String("canonical-name")
        p := t.pkg(name,
            func(c *packages.Cache) (*packages.Package, error) { return c.MergeFound(m) },
            func() *packages.Package { return packages.FoundFromMessage(m) })
        h.FoundPackage(p)
    }},
    CmdInstalledPackage: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.InstalledPackage(m.String("canonical-name")) }},
    CmdInstallingPackage: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.InstallingPackage(m.String("canonical-name"), m.Int("percent-complete", 0), m.Int("overall-percent-complete", 0))
    }},
    CmdRemovingPackage: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.RemovingPackage(m.String("canonical-name"), m.Int("percent-complete", 0))
    }},
    CmdDownloadProgress: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.DownloadProgress(m.String("canonical-name"), m.Int("progress", 0))
    }},
    CmdMessageArgumentError: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.MessageArgumentError(m.String("message"), m.String("parameter"), m.String("reason"))
    }},
    CmdMessageWarning: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.MessageWarning(m.String("message"), m.String("parameter"), m.String("reason"))
    }},
    CmdNoFeedsFound:    {invoke: func(_ *Table, _ *message.Message, h *handlers.Messages) { h.NoFeedsFound() }},
    CmdNoPackagesFound: {invoke: func(_ *Table, _ *message.Message, h *handlers.Messages) { h.NoPackagesFound() }},
    CmdOperationCancelled: {stop: true, invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.OperationCancelled(m.String("message"))
    }},
    CmdOperationRequiresPermission: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.OperationRequiresPermission(m.String("policy-required"))
    }},
    CmdPackageSatisfiedBy: {invoke: func(t *Table, m *message.Message, h *handlers.Messages) {
        h.PackageSatisfiedBy(t.ref(m.String("canonical-name")), t.ref(m.String("satisfied-by")))
    }},
    CmdPackageDetails: {invoke: func(t *Table, m *message.Message, h *handlers.Messages) {
        name := m.String("canonical-name")
        p := t.pkg(name,
            func(c *packages.Cache) (*packages.Package, error) { return c.MergeDetails(m) },
            func() *packages.Package { return packages.DetailsFromMessage(m) })
        h.PackageDetails(p)
    }},
    CmdPackageHasPotentialUpgrades: {invoke: func(t *Table, m *message.Message, h *handlers.Messages) {
        h.PackageHasPotentialUpgrades(t.ref(m.String("canonical-name")))
    }},
    CmdPackageIsBlocked: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.PackageIsBlocked(m.String("canonical-name")) }},
    CmdRemovedPackage:   {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.RemovedPackage(m.String("canonical-name")) }},
    CmdRequireRemoteFile: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.RequireRemoteFile(m.String("canonical-name"), m.List("remote-locations"), m.String("destination"), m.Bool("force", false))
    }},
    CmdSignatureValidation: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.SignatureValidation(m.String("filename"), m.Bool("is-valid", false), m.String("certificate-subject-name"))
    }},
    CmdUnableToRecognizeFile: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        h.UnableToRecognizeFile(m.String("filename"), m.String("reason"))
    }},
    CmdUnexpectedFailure: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.UnexpectedFailure(m.String("message")) }},
    CmdUnknownPackage:    {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.UnknownPackage(m.String("canonical-name")) }},
    CmdUnknownCommand: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) {
        zap.L().Warn("service did not recognise a command", zap.String("msg", m.Short()))
        h.UnknownCommand(m.String("command"))
    }},
    CmdPolicy: {invoke: func(_ *Table, m *message.Message, h *handlers.Messages) { h.Policy(packages.PolicyFromMessage(m)) }},
    CmdRestarting: {stop: true, invoke: func(t *Table, _ *message.Message, h *handlers.Messages) {
        h.Restarting()
        if t.conn != nil { t.conn.Disconnect() }
    }},
    CmdTaskComplete: {stop: true, invoke: func(_ *Table, _ *message.Message, h *handlers.Messages) { h.TaskComplete() }},
}
