package session

import "fmt"

const (
	slashCommandJoinDescription  = "あなたがいるボイスチャンネルにボイスドライバーを接続します。"
	slashCommandLeaveDescription = "ボイスドライバーを切断します。"
	slashCommandMuteDescription  = "ボイスドライバーの送信ミュートを切り替えます。"

	messageEphemeralWrongGuild        = ":warning: **このサーバーでは実行できません。**"
	messageEphemeralUnknownCommand    = ":warning: **不明なコマンドです。**"
	messageEphemeralVoiceLookupFailed = ":warning: **ボイスチャンネルの参加状態の確認に失敗しました。**"
	messageEphemeralJoinVCFirst       = ":warning: **ボイスチャンネルに参加してから実行してください。**"
	messageEphemeralAlreadyRunning    = ":warning: **このボイスチャンネルには既に接続しています。**"
	messageEphemeralStartFailed       = ":warning: **ボイスチャンネルへの接続に失敗しました。**"
	messageEphemeralStopFailed        = ":warning: **ボイスチャンネルからの切断に失敗しました。**"
	messageEphemeralNotRunning        = ":warning: **現在ボイスチャンネルに接続していません。**"

	messageJoinEphemeralTitleFormat  = ":loud_sound: <#%s> **に接続しました。**"
	messageLeaveEphemeralTitleFormat = ":mute: <#%s> **から切断しました。**"
	messageMutedEphemeral            = ":mute: **送信をミュートしました。**"
	messageUnmutedEphemeral          = ":loud_sound: **送信ミュートを解除しました。**"

	messageDisconnectedFormat = ":electric_plug: **ボイスチャンネルから切断されました。** (%s)"
)

func joinEphemeralTitle(channelID string) string {
	return fmt.Sprintf(messageJoinEphemeralTitleFormat, channelID)
}

func leaveEphemeralTitle(channelID string) string {
	return fmt.Sprintf(messageLeaveEphemeralTitleFormat, channelID)
}

func disconnectedMessage(reason string) string {
	return fmt.Sprintf(messageDisconnectedFormat, stopReasonDetail(reason))
}

func stopReasonDetail(reason string) string {
	switch reason {
	case StopReasonManualSlash:
		return "参加者に切断コマンドを実行されました。"
	case StopReasonParticipantsLeft:
		return "ボイスチャットに誰もいなくなりました。"
	case StopReasonBotRemoved:
		return "ボットが退出させられました。"
	case StopReasonServerClosed:
		return "サーバーが閉じられました。"
	case StopReasonConnectionLost:
		return "ボイスサーバーとの接続が切れました。"
	default:
		return "不明なエラーが発生しました。"
	}
}
