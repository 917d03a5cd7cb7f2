package category

// CatchAll is the marker that identifies a "miscellaneous" minor. New minors
// are inserted before the first minor containing it.
const CatchAll = "その他"

// IncomeMajor is the major used for income lines that carry no better tag.
const IncomeMajor = "収入"

// UnfiledMajor takes expense lines whose intended major is tagged as income.
const UnfiledMajor = "未分類"

var defaultOrder = []string{
	"食費",
	"日用品",
	"車両費",
	"交通",
	"外食費",
	"医療費",
	"保険代",
	"収入",
	"給与",
}

var defaultMinors = map[string][]string{
	"食費": {
		"精肉", "魚介", "野菜", "果物", "パン", "惣菜", "菓子", "飲料", "酒類",
		"調味料", "インスタント食品", "乳製品", "冷凍食品", "加工食品", "その他食品",
	},
	"日用品": {"洗剤", "紙類", "消耗品", "文房具", "キッチン用品", "バス・トイレ用品", "衛生用品", "その他"},
	"車両費": {"ガソリン", "駐車場代", "メンテナンス", "その他"},
	"交通":  {"電車", "バス", "タクシー", "その他"},
	"外食費": {"昼食", "夕食", "カフェ", "テイクアウト", "その他"},
	"医療費": {"診療代", "薬代", "検査代", "その他"},
	"保険代": {"生命保険", "損害保険", "自動車保険", "その他"},
	"収入":  {"給与", "副収入", "還付金", "その他"},
	"給与":  {"基本給", "賞与", "手当", "その他"},
}

var defaultIncome = []string{"収入", "給与"}

// Defaults returns a copy of the built-in taxonomy.
func Defaults() map[string][]string {
	out := make(map[string][]string, len(defaultMinors))
	for k, v := range defaultMinors {
		out[k] = append([]string(nil), v...)
	}
	return out
}
