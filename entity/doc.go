// Package entity defines the record kinds of the platform and the static
// ownership catalog that cascades walk.
//
// Every kind embeds [Meta] and [Tombstone] and implements the sealed
// [Record] interface. Ownership is a tree rooted at [Organization]:
//
//	Organization -> Notification, Department, Vendor, Material
//	Department   -> Task, User
//	Task         -> TaskActivity, TaskComment, Attachment
//	TaskActivity -> TaskComment, Attachment
//	TaskComment  -> TaskComment, Attachment
//
// Comments and attachments have a polymorphic owner described by the closed
// [ParentKind] enum. Associative references (assignees, watchers, mentions,
// materials, vendors, recipients) are exposed through [Record.References] and
// never cascade.
package entity
