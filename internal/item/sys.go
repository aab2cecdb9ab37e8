package item

// Sys is the namespace of store-level bookkeeping attributes.
const Sys Namespace = "sys"

// System attributes. None of them is shadowable: they describe local
// synchronization bookkeeping, never user data that could conflict.
var (
	// TypeAttr points at the item that represents the item's type.
	TypeAttr = Sys.Attr("type", KindLong)
	// MasterAttr links a dependent (slave) item to the item that owns it.
	MasterAttr = Sys.Attr("master", KindLong)
	// NewAttr marks an item created locally and not yet confirmed by the server.
	NewAttr = Sys.Attr("new", KindBool)
	// InvisibleAttr marks submit-only items.
	InvisibleAttr = Sys.Attr("invisible", KindBool)
	// DownloadStageAttr records how completely the item was fetched.
	DownloadStageAttr = Sys.Attr("downloadStage", KindInt)
	// UploadAttr records the upload lock state.
	UploadAttr = Sys.Attr("upload", KindInt)
	// RemovedAttr marks a synced item deleted locally; the removal is pending upload.
	RemovedAttr = Sys.Attr("removed", KindBool)
	// IdentityAttr holds the stable identity of materialized items.
	IdentityAttr = Sys.Attr("identity", KindString)
)

// SystemAttributes returns the attributes every registry starts with.
func SystemAttributes() []Attribute {
	return []Attribute{
		TypeAttr,
		MasterAttr,
		NewAttr,
		InvisibleAttr,
		DownloadStageAttr,
		UploadAttr,
		RemovedAttr,
		IdentityAttr,
	}
}
