package automator

// HomeURL is the NotebookLM landing page.
const HomeURL = "https://notebooklm.google.com/"

// XPath selectors for the NotebookLM UI. English and Korean labels are both
// matched since the UI follows the account locale.
const (
	newNotebookButton = `//button[contains(., "New notebook") or contains(., "새 노트북")]`
	addSourceButton   = `//button[contains(., "Add source") or contains(., "소스 추가") or @aria-label="Add source" or @aria-label="소스 추가"]`
	websiteOption     = `//button[contains(., "Website")] | //*[@data-value="website"]`
	urlInput          = `//input[@type="url" or contains(@placeholder, "URL") or contains(@placeholder, "url")] | //textarea`
	insertButton      = `//button[contains(., "Insert") or contains(., "삽입")]`
	busyIndicator     = `//*[@role="progressbar"] | //mat-spinner | //*[contains(@class, "loading-spinner")]`
	generateButton    = `//button[contains(., "Generate") or contains(., "생성") or contains(., "Create Audio Overview")]`
	downloadButton    = `//button[contains(., "Download") or contains(., "다운로드") or @aria-label="Download" or @aria-label="다운로드"]`
	audioReady        = downloadButton + ` | //button[contains(., "Play")] | //audio`
)
