// Package store 实现“一条记录一个文件”的平面文件存储。
//
// 每条记录保存在 <dir>/<name>.json；Create/Open 返回的 Handle 在存活期间持有该文件的
// 建议性排他锁，Close（或进程退出）时释放。Save 总是截断后整体重写，不做增量写入：
// 写到一半崩溃可能留下截断文件，这是已知且接受的限制。
package store
