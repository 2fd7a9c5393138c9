package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgSendPhoto     = "Send a photo of the item you want to sell and I'll look up what it goes for on eBay."
	MsgHelp          = `
		Send one photo, or an album of up to %d photos, of something you want to sell.
		Add a caption like _"ikea desk lamp"_ to help me identify it.

		I'll figure out what the item is, look up similar listings on eBay and suggest a price.`
	MsgTooManyPhotos = "Only the first %d photos are used."
)

// =============================================================================
// Pricing messages
// =============================================================================

const (
	MsgPricing              = "🔎 Looking up prices..."
	MsgPricingUnavailable   = "Pricing is not configured right now. Ask the admin to check the API keys."
	MsgExtractionFailed     = "I couldn't work out what the item is from the photos. Try a clearer photo or add a caption."
	MsgRetrievalFailed      = "eBay search failed. Try again in a moment."
	MsgSuggestedPrice       = "*Suggested price:* %s\n*Range:* %s to %s\n*Confidence:* %s"
	MsgNotEnoughComps       = "*Confidence:* %s\nFound %s, not enough for a price suggestion."
	MsgComparableListings   = "*Comparable listings:*"
	MsgComparableListingRow = "%d. [%s](%s) %s"
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Usage:\n`/admin users add <user_id>`\n`/admin users remove <user_id>`\n`/admin users list`"
	MsgAdminUserAddUsage    = "Usage: `/admin users add <user_id>`"
	MsgAdminUserRemoveUsage = "Usage: `/admin users remove <user_id>`"
	MsgAdminUserInvalidID   = "Invalid user ID. Give a number."
	MsgAdminUserAdded       = "✅ User `%d` added."
	MsgAdminUserRemoved     = "🗑 User `%d` removed."
	MsgAdminNoUsers         = "No allowed users."
	MsgAdminAllowedUsers    = "*Allowed users:*\n"
	MsgAdminNoStore         = "User management needs TOKEN_KEY to be set."
)
