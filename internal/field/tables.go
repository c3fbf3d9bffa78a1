package field

// defaultKey は順引きテーブルのフォールバック値を保持するキー。
// 逆引きテーブルには存在しない。
const defaultKey = "default"

// fieldMapCollection は内部値から外部（表示・編集）値への順引きテーブル。
// 列挙フィールドは default エントリを持ち、未知の内部値はこの値で描画される。
// field_headers はレコードキーから列見出し、db はレコードキーから永続化属性名への対応。
// db の selected は空文字列（永続化しない）に対応する。
var fieldMapCollection = map[Name]map[string]string{
	Status: {
		"Pending":  "Pending",
		"Success":  "OK",
		"Already":  "Already",
		"Error":    "ERR",
		defaultKey: "Pending",
	},
	Genre: {
		"Comedy":       "Comedy",
		"Books&Spoken": "Books & Spoken",
		defaultKey:     "Comedy",
	},
	DayOfWeek: {
		"ANY":      "Any",
		"Mon":      "Monday",
		"Tue":      "Tuesday",
		"Wed":      "Wednesday",
		"Thu":      "Thursday",
		"Fri":      "Friday",
		"Sat":      "Saturday",
		"Sun":      "Sunday",
		defaultKey: "Any",
	},
	Quality: {
		"Normal":   "Normal",
		"HIGH":     "High",
		defaultKey: "Normal",
	},
	FieldHeaders: {
		KeySelected:     "Select",
		KeyPos:          "#",
		KeyPID:          "PID",
		KeyStatus:       "Status",
		KeyTitle:        "Title",
		KeyGenre:        "Genre",
		KeyDayOfWeek:    "Day",
		KeyQuality:      "Quality",
		KeySynopsis:     "Synopsis",
		KeyImageURI:     "Image",
		KeyModifyTime:   "Modified",
		KeyDownloadTime: "Downloaded",
	},
	DB: {
		KeySelected:     "",
		KeyPID:          "pid",
		KeyPos:          "pos",
		KeyStatus:       "status",
		KeyGenre:        "genre",
		KeyDayOfWeek:    "day_of_week",
		KeyQuality:      "quality",
		KeyTitle:        "title",
		KeySynopsis:     "synopsis",
		KeyImageURI:     "image_uri",
		KeyModifyTime:   "modify_time",
		KeyDownloadTime: "download_time",
	},
}

// reverseFieldMapCollection は外部値から内部値への逆引きテーブル。
// default エントリを持たないため、未知の外部値の逆引きは必ず失敗する。
// 順引きテーブルから実行時に生成せず、明示的に記述して Validate で整合性を検証する。
var reverseFieldMapCollection = map[Name]map[string]string{
	Status: {
		"Pending": "Pending",
		"OK":      "Success",
		"Already": "Already",
		"ERR":     "Error",
	},
	Genre: {
		"Comedy":         "Comedy",
		"Books & Spoken": "Books&Spoken",
	},
	DayOfWeek: {
		"Any":       "ANY",
		"Monday":    "Mon",
		"Tuesday":   "Tue",
		"Wednesday": "Wed",
		"Thursday":  "Thu",
		"Friday":    "Fri",
		"Saturday":  "Sat",
		"Sunday":    "Sun",
	},
	Quality: {
		"Normal": "Normal",
		"High":   "HIGH",
	},
	FieldHeaders: {
		"Select":     KeySelected,
		"#":          KeyPos,
		"PID":        KeyPID,
		"Status":     KeyStatus,
		"Title":      KeyTitle,
		"Genre":      KeyGenre,
		"Day":        KeyDayOfWeek,
		"Quality":    KeyQuality,
		"Synopsis":   KeySynopsis,
		"Image":      KeyImageURI,
		"Modified":   KeyModifyTime,
		"Downloaded": KeyDownloadTime,
	},
	DB: {
		"pid":           KeyPID,
		"pos":           KeyPos,
		"status":        KeyStatus,
		"genre":         KeyGenre,
		"day_of_week":   KeyDayOfWeek,
		"quality":       KeyQuality,
		"title":         KeyTitle,
		"synopsis":      KeySynopsis,
		"image_uri":     KeyImageURI,
		"modify_time":   KeyModifyTime,
		"download_time": KeyDownloadTime,
	},
}

// fieldOrderCollection は各フィールドの正規順序。
// 列挙フィールドはドロップダウンに表示する外部値の順序、
// field_headers は列表示のキー順序、db は永続化時のキー順序を表す。
var fieldOrderCollection = map[Name][]string{
	Status:    {"Pending", "OK", "Already", "ERR"},
	Genre:     {"Comedy", "Books & Spoken"},
	DayOfWeek: {"Any", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
	Quality:   {"Normal", "High"},
	FieldHeaders: {
		KeySelected, KeyPos, KeyPID, KeyStatus, KeyTitle, KeyGenre,
		KeyDayOfWeek, KeyQuality, KeySynopsis, KeyImageURI, KeyModifyTime, KeyDownloadTime,
	},
	DB: {
		KeyPID, KeyPos, KeyStatus, KeyGenre, KeyDayOfWeek, KeyQuality,
		KeyTitle, KeySynopsis, KeyImageURI, KeyModifyTime, KeyDownloadTime,
	},
}
