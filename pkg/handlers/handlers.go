// Package handlers defines the callback sets a caller supplies to observe the
// messages the service streams back for a call.
//
// A Messages value fills only the slots the caller is interested in. Sets are
// layered: a call's own sets are consulted first (most recent first), then
// those of the enclosing call, and finally Default, which has a no-op for
// every slot. Handler names match the inbound command names one to one.
package handlers

import (
    "coapp/pkg/packages"
)

// Messages is a bundle of optional callbacks, one per inbound command. A nil
// slot defers to the next set in the chain.
type Messages struct {
    FoundPackage                func(p *packages.Package)
    FoundFeed                   func(f packages.Feed)
    PackageDetails              func(p *packages.Package)
    PackageSatisfiedBy          func(p, satisfiedBy *packages.Package)
    PackageHasPotentialUpgrades func(p *packages.Package)
    InstallingPackage           func(name string, percent, overall int)
    RemovingPackage             func(name string, percent int)
    DownloadProgress            func(name string, percent int)
    InstalledPackage            func(name string)
    RemovedPackage              func(name string)
    FailedPackageInstall        func(name, filename, reason string)
    FailedPackageRemove         func(name, reason string)
    FeedAdded                   func(location string)
    FeedRemoved                 func(location string)
    FeedSuppressed              func(location string)
    FileNotFound                func(filename string)
    MessageArgumentError        func(message, parameter, reason string)
    MessageWarning              func(message, parameter, reason string)
    NoFeedsFound                func()
    NoPackagesFound             func()
    OperationCancelled          func(reason string)
    OperationRequiresPermission func(policy string)
    PackageIsBlocked            func(name string)
    RequireRemoteFile           func(name string, locations []string, destination string, force bool)
    SignatureValidation         func(filename string, valid bool, subject string)
    UnableToRecognizeFile       func(filename, reason string)
    UnexpectedFailure           func(message string)
    UnknownPackage              func(name string)
    UnknownCommand              func(command string)
    Policy                      func(p packages.Policy)
    Restarting                  func()
    TaskComplete                func()
}

// Default answers every slot with a no-op.
var Default = Messages{
    FoundPackage:                func(*packages.Package) {},
    FoundFeed:                   func(packages.Feed) {},
    PackageDetails:              func(*packages.Package) {},
    PackageSatisfiedBy:          func(_, _ *packages.Package) {},
    PackageHasPotentialUpgrades: func(*packages.Package) {},
    InstallingPackage:           func(string, int, int) {},
    RemovingPackage:             func(string, int) {},
    DownloadProgress:            func(string, int) {},
    InstalledPackage:            func(string) {},
    RemovedPackage:              func(string) {},
    FailedPackageInstall:        func(_, _, _ string) {},
    FailedPackageRemove:         func(_, _ string) {},
    FeedAdded:                   func(string) {},
    FeedRemoved:                 func(string) {},
    FeedSuppressed:              func(string) {},
    FileNotFound:                func(string) {},
    MessageArgumentError:        func(_, _, _ string) {},
    MessageWarning:              func(_, _, _ string) {},
    NoFeedsFound:                func() {},
    NoPackagesFound:             func() {},
    OperationCancelled:          func(string) {},
    OperationRequiresPermission: func(string) {},
    PackageIsBlocked:            func(string) {},
    RequireRemoteFile:           func(string, []string, string, bool) {},
    SignatureValidation:         func(string, bool, string) {},
    UnableToRecognizeFile:       func(_, _ string) {},
    UnexpectedFailure:           func(string) {},
    UnknownPackage:              func(string) {},
    UnknownCommand:              func(string) {},
    Policy:                      func(packages.Policy) {},
    Restarting:                  func() {},
    TaskComplete:                func() {},
}

// Extend returns a new set that takes each slot from m when m sets it and
// from other otherwise. Neither input is modified. A nil receiver or argument
// behaves as an empty set.
func (m *Messages) Extend(other *Messages) *Messages {
    out := &Messages{}
    if m != nil { *out = *m }
    if other == nil { return out }
    o := other
    if out.FoundPackage == nil { out.FoundPackage = o.FoundPackage }
    if out.FoundFeed == nil { out.FoundFeed = o.FoundFeed }
    if out.PackageDetails == nil { out.PackageDetails = o.PackageDetails }
    if out.PackageSatisfiedBy == nil { out.PackageSatisfiedBy = o.PackageSatisfiedBy }
    if out.PackageHasPotentialUpgrades == nil { out.PackageHasPotentialUpgrades = o.PackageHasPotentialUpgrades }
    if out.InstallingPackage == nil { out.InstallingPackage = o.InstallingPackage }
    if out.RemovingPackage == nil { out.RemovingPackage = o.RemovingPackage }
    if out.DownloadProgress == nil { out.DownloadProgress = o.DownloadProgress }
    if out.InstalledPackage == nil { out.InstalledPackage = o.InstalledPackage }
    if out.RemovedPackage == nil { out.RemovedPackage = o.RemovedPackage }
    if out.FailedPackageInstall == nil { out.FailedPackageInstall = o.FailedPackageInstall }
    if out.FailedPackageRemove == nil { out.FailedPackageRemove = o.FailedPackageRemove }
    if out.FeedAdded == nil { out.FeedAdded = o.FeedAdded }
    if out.FeedRemoved == nil { out.FeedRemoved = o.FeedRemoved }
    if out.FeedSuppressed == nil { out.FeedSuppressed = o.FeedSuppressed }
    if out.FileNotFound == nil { out.FileNotFound = o.FileNotFound }
    if out.MessageArgumentError == nil { out.MessageArgumentError = o.MessageArgumentError }
    if out.MessageWarning == nil { out.MessageWarning = o.MessageWarning }
    if out.NoFeedsFound == nil { out.NoFeedsFound = o.NoFeedsFound }
    if out.NoPackagesFound == nil { out.NoPackagesFound = o.NoPackagesFound }
    if out.OperationCancelled == nil { out.OperationCancelled = o.OperationCancelled }
    if out.OperationRequiresPermission == nil { out.OperationRequiresPermission = o.OperationRequiresPermission }
    if out.PackageIsBlocked == nil { out.PackageIsBlocked = o.PackageIsBlocked }
    if out.RequireRemoteFile == nil { out.RequireRemoteFile = o.RequireRemoteFile }
    if out.SignatureValidation == nil { out.SignatureValidation = o.SignatureValidation }
    if out.UnableToRecognizeFile == nil { out.UnableToRecognizeFile = o.UnableToRecognizeFile }
    if out.UnexpectedFailure == nil { out.UnexpectedFailure = o.UnexpectedFailure }
    if out.UnknownPackage == nil { out.UnknownPackage = o.UnknownPackage }
    if out.UnknownCommand == nil { out.UnknownCommand = o.UnknownCommand }
    if out.Policy == nil { out.Policy = o.Policy }
    if out.Restarting == nil { out.Restarting = o.Restarting }
    if out.TaskComplete == nil { out.TaskComplete = o.TaskComplete }
    return out
}

// Chain is an ordered list of sets, most specific first.
type Chain []*Messages

// Resolve folds the chain over Default. Every slot of the result is non-nil,
// so callers may invoke any slot without checking.
func (c Chain) Resolve() *Messages {
    out := &Messages{}
    for _, m := range c {
        out = out.Extend(m)
    }
    return out.Extend(&Default)
}

// Resolve is shorthand for Chain(sets).Resolve().
func Resolve(sets ...*Messages) *Messages { return Chain(sets).Resolve() }

// Tee returns a set whose slots call a's handler and then tap's, for every
// slot tap sets. Slots tap leaves nil behave as in a; nil slots of a behave as
// Default. Neither input is modified.
func Tee(a, tap *Messages) *Messages {
    out := a.Extend(&Default)
    if tap == nil { return out }
    t := tap
    if f, g := out.FoundPackage, t.FoundPackage; g != nil { out.FoundPackage = func(p *packages.Package) { f(p); g(p) } }
    if f, g := out.FoundFeed, t.FoundFeed; g != nil { out.FoundFeed = func(x packages.Feed) { f(x); g(x) } }
    if f, g := out.PackageDetails, t.PackageDetails; g != nil { out.PackageDetails = func(p *packages.Package) { f(p); g(p) } }
    if f, g := out.PackageSatisfiedBy, t.PackageSatisfiedBy; g != nil {
        out.PackageSatisfiedBy = func(p, by *packages.Package) { f(p, by); g(p, by) }
    }
    if f, g := out.PackageHasPotentialUpgrades, t.PackageHasPotentialUpgrades; g != nil {
        out.PackageHasPotentialUpgrades = func(p *packages.Package) { f(p); g(p) }
    }
    if f, g := out.InstallingPackage, t.InstallingPackage; g != nil {
        out.InstallingPackage = func(n string, pc, all int) { f(n, pc, all); g(n, pc, all) }
    }
    if f, g := out.RemovingPackage, t.RemovingPackage; g != nil { out.RemovingPackage = func(n string, pc int) { f(n, pc); g(n, pc) } }
    if f, g := out.DownloadProgress, t.DownloadProgress; g != nil { out.DownloadProgress = func(n string, pc int) { f(n, pc); g(n, pc) } }
    if f, g := out.InstalledPackage, t.InstalledPackage; g != nil { out.InstalledPackage = func(n string) { f(n); g(n) } }
    if f, g := out.RemovedPackage, t.RemovedPackage; g != nil { out.RemovedPackage = func(n string) { f(n); g(n) } }
    if f, g := out.FailedPackageInstall, t.FailedPackageInstall; g != nil {
        out.FailedPackageInstall = func(n, file, r string) { f(n, file, r); g(n, file, r) }
    }
    if f, g := out.FailedPackageRemove, t.FailedPackageRemove; g != nil { out.FailedPackageRemove = func(n, r string) { f(n, r); g(n, r) } }
    if f, g := out.FeedAdded, t.FeedAdded; g != nil { out.FeedAdded = func(l string) { f(l); g(l) } }
    if f, g := out.FeedRemoved, t.FeedRemoved; g != nil { out.FeedRemoved = func(l string) { f(l); g(l) } }
    if f, g := out.FeedSuppressed, t.FeedSuppressed; g != nil { out.FeedSuppressed = func(l string) { f(l); g(l) } }
    if f, g := out.FileNotFound, t.FileNotFound; g != nil { out.FileNotFound = func(n string) { f(n); g(n) } }
    if f, g := out.MessageArgumentError, t.MessageArgumentError; g != nil {
        out.MessageArgumentError = func(m, p, r string) { f(m, p, r); g(m, p, r) }
    }
    if f, g := out.MessageWarning, t.MessageWarning; g != nil { out.MessageWarning = func(m, p, r string) { f(m, p, r); g(m, p, r) } }
    if f, g := out.NoFeedsFound, t.NoFeedsFound; g != nil { out.NoFeedsFound = func() { f(); g() } }
    if f, g := out.NoPackagesFound, t.NoPackagesFound; g != nil { out.NoPackagesFound = func() { f(); g() } }
    if f, g := out.OperationCancelled, t.OperationCancelled; g != nil { out.OperationCancelled = func(r string) { f(r); g(r) } }
    if f, g := out.OperationRequiresPermission, t.OperationRequiresPermission; g != nil {
        out.OperationRequiresPermission = func(p string) { f(p); g(p) }
    }
    if f, g := out.PackageIsBlocked, t.PackageIsBlocked; g != nil { out.PackageIsBlocked = func(n string) { f(n); g(n) } }
    if f, g := out.RequireRemoteFile, t.RequireRemoteFile; g != nil {
        out.RequireRemoteFile = func(n string, locs []string, dst string, force bool) { f(n, locs, dst, force); g(n, locs, dst, force) }
    }
    if f, g := out.SignatureValidation, t.SignatureValidation; g != nil {
        out.SignatureValidation = func(n string, ok bool, s string) { f(n, ok, s); g(n, ok, s) }
    }
    if f, g := out.UnableToRecognizeFile, t.UnableToRecognizeFile; g != nil { out.UnableToRecognizeFile = func(n, r string) { f(n, r); g(n, r) } }
    if f, g := out.UnexpectedFailure, t.UnexpectedFailure; g != nil { out.UnexpectedFailure = func(m string) { f(m); g(m) } }
    if f, g := out.UnknownPackage, t.UnknownPackage; g != nil { out.UnknownPackage = func(n string) { f(n); g(n) } }
    if f, g := out.UnknownCommand, t.UnknownCommand; g != nil { out.UnknownCommand = func(c string) { f(c); g(c) } }
    if f, g := out.Policy, t.Policy; g != nil { out.Policy = func(p packages.Policy) { f(p); g(p) } }
    if f, g := out.Restarting, t.Restarting; g != nil { out.Restarting = func() { f(); g() } }
    if f, g := out.TaskComplete, t.TaskComplete; g != nil { out.TaskComplete = func() { f(); g() } }
    return out
}
