package whatsapp

// see https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/components#notification-payload-object
//
//	{
//	  "object": "whatsapp_business_account",
//	  "entry": [{
//	    "id": "8856996819413533",
//	    "changes": [{
//	      "field": "messages",
//	      "value": {
//	        "messaging_product": "whatsapp",
//	        "metadata": {"display_phone_number": "+250 788 123 200", "phone_number_id": "12345"},
//	        "contacts": [{"profile": {"name": "John"}, "wa_id": "123"}],
//	        "messages": [{"from": "123", "id": "wamid.1", "timestamp": "1454119029", "type": "text", "text": {"body": "koman ou ye?"}}]
//	      }
//	    }]
//	  }]
//	}
type Notifications struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string   `json:"id"`
		Time    int64    `json:"time"`
		Changes []Change `json:"changes"`
	} `json:"entry"`
}

// see https://developers.facebook.com/docs/whatsapp/cloud-api/reference/media#example-2
type MOMedia struct {
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	ID       string `json:"id"`
	File     string `json:"file"`
	Mimetype string `json:"mime_type"`
	SHA256   string `json:"sha256"`
}

type WAError struct {
	Code  int    `json:"code"`
	Title string `json:"title"`
}

type WAContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

type WAMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio  *MOMedia  `json:"audio"`
	Voice  *MOMedia  `json:"voice"`
	Errors []WAError `json:"errors"`
}

type WAStatus struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Status      string    `json:"status"`
	Timestamp   string    `json:"timestamp"`
	Errors      []WAError `json:"errors"`
}

type WAMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Change struct {
	Field string `json:"field"`
	Value struct {
		MessagingProduct string      `json:"messaging_product"`
		Metadata         *WAMetadata `json:"metadata"`
		Contacts         []WAContact `json:"contacts"`
		Messages         []WAMessage `json:"messages"`
		Statuses         []WAStatus  `json:"statuses"`
		Errors           []WAError   `json:"errors"`
	} `json:"value"`
}

type Text struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

// see https://developers.facebook.com/docs/whatsapp/cloud-api/guides/send-messages#request-syntax
type SendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`

	Text *Text `json:"text,omitempty"`
}

// see https://developers.facebook.com/docs/whatsapp/cloud-api/guides/send-messages#response-syntax
type SendResponse struct {
	Messages []*struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// ThrottlingErrorCodes are the error codes returned when we are sending too fast
var ThrottlingErrorCodes = []int{4, 80007, 130429, 131048, 131056, 133016}
