package dispatch

// Inbound command names.
const (
    CmdFailedPackageInstall        = "failed-package-install"
    CmdFailedPackageRemove         = "failed-package-remove"
    CmdFeedAdded                   = "feed-added"
    CmdFeedRemoved                 = "feed-removed"
    CmdFeedSuppressed              = "feed-suppressed"
    CmdFileNotFound                = "file-not-found"
    CmdFoundFeed                   = "found-feed"
    CmdFoundPackage                = "found-package"
    CmdInstalledPackage            = "installed-package"
    CmdInstallingPackage           = "installing-package"
    CmdRemovingPackage             = "removing-package"
    CmdDownloadProgress            = "download-progress"
    CmdMessageArgumentError        = "message-argument-error"
    CmdMessageWarning              = "message-warning"
    CmdNoFeedsFound                = "no-feeds-found"
    CmdNoPackagesFound             = "no-packages-found"
    CmdOperationCancelled          = "operation-cancelled"
    CmdOperationRequiresPermission = "operation-requires-permission"
    CmdPackageSatisfiedBy          = "package-satisfied-by"
    CmdPackageDetails              = "package-details"
    CmdPackageHasPotentialUpgrades = "package-has-potential-upgrades"
    CmdPackageIsBlocked            = "package-is-blocked"
    CmdRemovedPackage              = "removed-package"
    CmdRequireRemoteFile           = "require-remote-file"
    CmdSignatureValidation         = "signature-validation"
    CmdUnableToRecognizeFile       = "unable-to-recognize-file"
    CmdUnexpectedFailure           = "unexpected-failure"
    CmdUnknownPackage              = "unknown-package"
    CmdUnknownCommand              = "unknown-command"
    CmdPolicy                      = "policy"
    CmdRestarting                  = "restarting"
    CmdTaskComplete                = "task-complete"
)
